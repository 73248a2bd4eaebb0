package config

import (
	"testing"

	"github.com/fulmenhq/gofulmen/schema"
	"github.com/stretchr/testify/assert"
)

func TestCollectErrors(t *testing.T) {
	root := schema.Diagnostic{Message: "doesn't validate", Severity: schema.SeverityError}
	pageSize := schema.Diagnostic{Pointer: "/jobs/page_size", Message: "must be >= 1", Severity: schema.SeverityError}
	warn := schema.Diagnostic{Pointer: "/server/port", Message: "unusual port", Severity: schema.SeverityWarn}

	tests := []struct {
		name  string
		diags []schema.Diagnostic
		want  ValidationErrors
	}{
		{"none", nil, nil},
		{"warnings only", []schema.Diagnostic{warn}, nil},
		{"root before pointer", []schema.Diagnostic{root, pageSize}, ValidationErrors{{Path: "/jobs/page_size", Message: "must be >= 1"}}},
		{"root after pointer", []schema.Diagnostic{pageSize, warn, root}, ValidationErrors{{Path: "/jobs/page_size", Message: "must be >= 1"}}},
		{"root alone", []schema.Diagnostic{root}, ValidationErrors{{Message: "doesn't validate"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collectErrors(tt.diags))
		})
	}
}
