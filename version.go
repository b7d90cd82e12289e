package ncmpp

import (
	"fmt"
	"runtime"
)

func VersionNumberString() string {
	// TODO: we probably want a commit hash for release binaries
	return "dev"
}

func VersionString() string {
	return fmt.Sprintf("ncmpp %s", VersionNumberString())
}

func SystemInfoString() string {
	return fmt.Sprintf("%s; Go %s", VersionString(), runtime.Version())
}
