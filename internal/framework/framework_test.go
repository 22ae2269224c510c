package framework

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PentesterFlow/SiteMapper/internal/browser/browsertest"
)

// ===== Detector Tests =====

func TestDetector_Script(t *testing.T) {
	d := NewDetector()
	script := d.Script()

	for _, sig := range Signatures() {
		if !strings.Contains(script, `"`+string(sig.Type)+`"`) {
			t.Errorf("script missing probe for %s", sig.Type)
		}
	}
	if !strings.Contains(script, "document.readyState === 'complete'") {
		t.Error("script should report document readiness")
	}
}

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name     string
		result   map[string]interface{}
		primary  Type
		isSPA    bool
		complete bool
	}{
		{
			name:     "react app",
			result:   map[string]interface{}{"frameworks": []string{"react"}, "complete": false},
			primary:  TypeReact,
			isSPA:    true,
			complete: false,
		},
		{
			name:     "next over react",
			result:   map[string]interface{}{"frameworks": []string{"nextjs", "react"}, "complete": true},
			primary:  TypeNext,
			isSPA:    true,
			complete: true,
		},
		{
			name:     "static page",
			result:   map[string]interface{}{"frameworks": []string{}, "complete": true},
			primary:  TypeUnknown,
			isSPA:    false,
			complete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			page := browsertest.NewFakePage().Return(d.Script(), tt.result)

			got, err := d.Detect(context.Background(), page)
			if err != nil {
				t.Fatalf("Detect error = %v", err)
			}
			if got.Primary != tt.primary || got.IsSPA != tt.isSPA || got.DocumentComplete != tt.complete {
				t.Errorf("Detect = %+v", got)
			}
		})
	}
}

func TestDetector_DetectError(t *testing.T) {
	d := NewDetector()
	page := browsertest.NewFakePage().Fail(d.Script(), errors.New("context destroyed"))

	if _, err := d.Detect(context.Background(), page); err == nil {
		t.Error("Detect should surface eval errors")
	}
}

// ===== Router Attribute Tests =====

func TestRouterAttributes(t *testing.T) {
	attrs := RouterAttributes()

	want := map[string]bool{"to": false, "routerlink": false, "ng-href": false, "href": false}
	for _, ra := range attrs {
		if _, ok := want[ra.Attr]; ok {
			want[ra.Attr] = true
		}
	}
	for attr, found := range want {
		if !found {
			t.Errorf("RouterAttributes missing %s", attr)
		}
	}

	seen := make(map[RouterAttr]bool)
	for _, ra := range attrs {
		if seen[ra] {
			t.Errorf("duplicate router attribute %+v", ra)
		}
		seen[ra] = true
	}
}
