package espresso

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

//go:generate mockgen -write_package_comment=false -package=$GOPACKAGE -destination=mock_console_test.go github.com/antibyte/espresso/pkg/espresso Console
func TestEspresso(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Espresso Suite")
}
