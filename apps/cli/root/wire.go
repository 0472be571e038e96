package root

import (
	"github.com/agronova/tracker-backend/apps/cli/cmd/auth"
	"github.com/agronova/tracker-backend/apps/cli/cmd/bootstrap"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
}
