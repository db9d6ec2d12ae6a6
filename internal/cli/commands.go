package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sudosu-ai/sudosu/internal/config"
)

// writeConfig prints the effective session configuration. The credential is
// masked; only an env: reference is shown verbatim since it holds no secret.
func writeConfig(w io.Writer, cfg *config.Config, root string) {
	endpoint, err := cfg.Connection.Endpoint()
	if err != nil {
		endpoint = "(invalid mode)"
	}

	fmt.Fprintf(w, "  mode:        %s\n", cfg.Connection.Mode)
	fmt.Fprintf(w, "  endpoint:    %s\n", endpoint)
	fmt.Fprintf(w, "  credential:  %s\n", maskCredential(cfg.Connection.CredentialRef))
	fmt.Fprintf(w, "  root:        %s\n", root)
	fmt.Fprintf(w, "  restricted:  %v\n", cfg.Sandbox.Restricted)
	fmt.Fprintf(w, "  transcript:  %v\n", cfg.Transcript.Enabled)
	fmt.Fprintf(w, "  log level:   %s\n", cfg.Logging.Level)
}

func maskCredential(ref string) string {
	switch {
	case ref == "":
		return "(none)"
	case strings.HasPrefix(ref, "env:"):
		return ref
	case len(ref) > 8:
		return ref[:4] + "..." + ref[len(ref)-4:]
	default:
		return "****"
	}
}

// writeIntegrations lists the registered integration tool names.
func writeIntegrations(w io.Writer, tools []string) {
	if len(tools) == 0 {
		fmt.Fprintln(w, "  no integration tools registered")
		return
	}
	sort.Strings(tools)
	for _, name := range tools {
		fmt.Fprintf(w, "  %s\n", name)
	}
}
