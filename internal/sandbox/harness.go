package sandbox

import (
	"fmt"
	"os"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

// writeHarness stages a temp file that wraps the user's handler source
// so it can be invoked as `<interpreter> <harness> <json-argv>`.
func writeHarness(interpreter, source string) (string, error) {
	var tmpl, ext string
	switch interpreter {
	case "node":
		tmpl, ext = jsHarness, ".js"
	case "python3":
		tmpl, ext = pyHarness, ".py"
	default:
		return "", fmt.Errorf("no harness template for interpreter %q", interpreter)
	}

	f, err := os.CreateTemp("", "flux-harness-*"+ext)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.WriteString(fmt.Sprintf(tmpl, source)); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// jsHarness expects the user's module to `module.exports = function(event) { ... }`.
const jsHarness = `
%s

const input = JSON.parse(process.argv[2] || "null");
const result = module.exports(input);
Promise.resolve(result).then((r) => {
  console.log(JSON.stringify(r));
}).catch((e) => {
  console.error(String(e));
  process.exit(1);
});
`

// pyHarness expects the user's module to define def handler(event): ...
const pyHarness = `
import json
import sys

%s

if __name__ == "__main__":
    event = json.loads(sys.argv[1]) if len(sys.argv) > 1 else None
    result = handler(event)
    print(json.dumps(result))
`

// RuntimeExtension returns the source file extension conventionally used
// for a given script kind (harness staging, error messages).
func RuntimeExtension(kind domain.ScriptKind) string {
	switch kind {
	case domain.ScriptJavaScript:
		return ".js"
	case domain.ScriptTypeScript:
		return ".ts"
	case domain.ScriptPython:
		return ".py"
	case domain.ScriptRust:
		return ".rs"
	default:
		return ".txt"
	}
}
