package backup

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

// BundleVersion is written to and required of every export bundle.
const BundleVersion = "1.0"

// timestampLayout is ISO-8601 with milliseconds, always in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// ErrMalformedBundle is returned when an import is rejected before any
// write happens.
var ErrMalformedBundle = errors.New("malformed bundle")

//go:embed bundle.cue
var bundleSchema string

// Bundle is a full point-in-time export of the key-value bucket.
type Bundle struct {
	Version    string                     `json:"version"`
	ExportDate string                     `json:"exportDate"`
	Data       map[string]json.RawMessage `json:"data"`
}

// WriteBundle writes b as indented JSON. Keys are sorted so the output is
// stable and diffable.
func WriteBundle(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

// FileName returns "<app>_Backup_<timestamp><ext>" with the colons of the
// timestamp replaced by dashes.
func FileName(app string, t time.Time, ext string) string {
	stamp := strings.ReplaceAll(t.UTC().Format(timestampLayout), ":", "-")
	return app + "_Backup_" + stamp + ext
}

// validator checks raw bundles against the embedded CUE schema. A CUE
// context is not safe for concurrent use, hence the mutex.
type validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

func newValidator() (*validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(bundleSchema, cue.Filename("bundle.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile bundle schema: %w", err)
	}
	schema := v.LookupPath(cue.ParsePath("#Bundle"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("lookup bundle schema: %w", err)
	}
	return &validator{ctx: ctx, schema: schema}, nil
}

// parse decodes raw into a Bundle after checking it against the schema.
// Every failure wraps ErrMalformedBundle.
func (v *validator) parse(raw []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}
	if b.Data == nil {
		return nil, fmt.Errorf("%w: data is missing", ErrMalformedBundle)
	}

	expr, err := cuejson.Extract("bundle.json", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	value := v.ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedBundle, firstCUEError(err))
	}
	if err := v.schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedBundle, firstCUEError(err))
	}
	return &b, nil
}

func firstCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	msg := errs[0].Error()
	if len(errs) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return msg
}
