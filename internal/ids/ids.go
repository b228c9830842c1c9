// Package ids implements the identifier & type registry:
// generation of the opaque short ids used by states/ports/outcomes/
// transitions/data-flows, plus validation of declared port/scoped-variable
// type names.
package ids

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

var shortIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// counter gives short ids a readable, monotonically distinguishable prefix
// on top of the random suffix; it is process-local and never persisted.
var counter uint64

// NewShortID returns an opaque short string unique with overwhelming
// probability among siblings, e.g. "state1-mfrggzdf": prefix, the
// process-local counter, "-", then 8 lower-case base32 characters. prefix
// names the kind of thing being identified; callers pass "state", "port",
// "oc" (outcome), "sv" (scoped variable), "trans" (transition) and "df"
// (data flow).
func NewShortID(prefix string) string {
	n := atomic.AddUint64(&counter, 1)
	buf := make([]byte, 5)
	_, _ = rand.Read(buf)
	suffix := strings.ToLower(shortIDEncoding.EncodeToString(buf))
	return fmt.Sprintf("%s%d-%s", prefix, n, suffix)
}

// NewRunID returns a uuid-shaped run identifier.
func NewRunID() string { return uuid.NewString() }

// NewHistoryItemID returns a uuid-shaped history item identifier.
func NewHistoryItemID() string { return uuid.NewString() }

// Reserved outcome ids/names.
const (
	OutcomeSuccessID  = "success"
	OutcomeAbortedID  = "-1"
	OutcomePreemptID  = "-2"
	OutcomeSuccessNm  = "success"
	OutcomeAbortedNm  = "aborted"
	OutcomePreemptNm  = "preempted"
)

// UniqueDeciderStateID is the reserved id of the implicit decider child of a
// barrier-concurrency state.
const UniqueDeciderStateID = "__decider__"

// Primitive type names recognised by the type registry.
var primitiveTypes = map[string]bool{
	"int": true, "float": true, "string": true, "bool": true,
	"bytes": true, "list": true, "map": true, "null": true, "any": true,
}

// ValidTypeName reports whether name is a recognised primitive or a
// structured type built from one, e.g. "list<int>" or "map<string,float>".
func ValidTypeName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	base, rest, structured := strings.Cut(name, "<")
	if !primitiveTypes[base] {
		return false
	}
	if !structured {
		return true
	}
	if !strings.HasSuffix(rest, ">") {
		return false
	}
	inner := strings.TrimSuffix(rest, ">")
	switch base {
	case "list":
		return ValidTypeName(inner)
	case "map":
		k, v, ok := strings.Cut(inner, ",")
		if !ok {
			return false
		}
		return ValidTypeName(strings.TrimSpace(k)) && ValidTypeName(strings.TrimSpace(v))
	default:
		return false
	}
}
