package restriction

import (
	"fmt"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// Violation rejects a stay. It is a business outcome, not a fault.
type Violation struct {
	Code   domain.RestrictionCode
	Detail string
}

func (v *Violation) Error() string {
	if v.Detail == "" {
		return string(v.Code)
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Detail)
}

func violation(code domain.RestrictionCode, format string, args ...any) *Violation {
	return &Violation{Code: code, Detail: fmt.Sprintf(format, args...)}
}
