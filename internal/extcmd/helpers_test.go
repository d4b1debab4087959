package extcmd_test

import "recut/internal/config"

func extcmdConfig() config.Commands {
	return config.Default().Commands
}
