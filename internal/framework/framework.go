// Package framework identifies client-side frameworks on a rendered page
// and knows which attributes their routers keep link targets in.
package framework

import (
	"context"
	"fmt"
	"strings"

	"github.com/PentesterFlow/SiteMapper/internal/browser"
)

// Type represents a JavaScript framework type.
type Type string

const (
	TypeUnknown   Type = "unknown"
	TypeAngularJS Type = "angularjs" // AngularJS 1.x
	TypeAngular   Type = "angular"   // Angular 2+
	TypeReact     Type = "react"
	TypeVue       Type = "vue"
	TypeEmber     Type = "ember"
	TypeNext      Type = "nextjs"
	TypeNuxt      Type = "nuxt"
)

// RouterAttr names an element selector and the attribute holding its
// route target.
type RouterAttr struct {
	Selector string
	Attr     string
}

// Signature describes how a framework shows itself on a page.
type Signature struct {
	Type Type
	// Probe is a JavaScript boolean expression evaluated in the page.
	Probe string
	// Router lists where the framework's router renders link targets.
	Router []RouterAttr
}

// Signatures returns the known framework signatures in detection order.
func Signatures() []Signature {
	return []Signature{
		{
			Type: TypeNext,
			Probe: `!!(window.__NEXT_DATA__ || document.querySelector('#__next'))`,
		},
		{
			Type: TypeNuxt,
			Probe: `!!(window.__NUXT__ || window.$nuxt || document.querySelector('#__nuxt'))`,
		},
		{
			Type: TypeReact,
			Probe: `!!(window.React ||
				window.__REACT_DEVTOOLS_GLOBAL_HOOK__ ||
				document.querySelector('[data-reactroot], [data-reactid]'))`,
		},
		{
			Type: TypeVue,
			Probe: `!!(window.Vue ||
				window.__VUE__ ||
				document.querySelector('[data-v-app]') ||
				document.querySelector('#app')?.__vue__ ||
				document.querySelector('#app')?.__vue_app__)`,
			Router: []RouterAttr{{Selector: "router-link[to]", Attr: "to"}},
		},
		{
			Type: TypeAngular,
			Probe: `!!(window.ng ||
				window.getAllAngularRootElements ||
				document.querySelector('[ng-version]'))`,
			Router: []RouterAttr{{Selector: "[routerlink]", Attr: "routerlink"}},
		},
		{
			Type:   TypeAngularJS,
			Probe:  `!!(window.angular && window.angular.version && window.angular.version.major === 1)`,
			Router: []RouterAttr{{Selector: "[ng-href]", Attr: "ng-href"}},
		},
		{
			Type: TypeEmber,
			Probe: `!!(window.Ember ||
				window.EmberENV ||
				document.querySelector('.ember-view'))`,
			Router: []RouterAttr{{Selector: "a.ember-view[href]", Attr: "href"}},
		},
	}
}

// RouterAttributes returns the router attributes of every signature,
// without duplicates, in signature order.
func RouterAttributes() []RouterAttr {
	seen := make(map[RouterAttr]bool)
	var out []RouterAttr
	for _, sig := range Signatures() {
		for _, ra := range sig.Router {
			if !seen[ra] {
				seen[ra] = true
				out = append(out, ra)
			}
		}
	}
	return out
}

// DetectionResult contains the result of framework detection.
type DetectionResult struct {
	Frameworks []Type `json:"frameworks"`
	Primary    Type   `json:"primary"`
	IsSPA      bool   `json:"is_spa"`
	// DocumentComplete mirrors document.readyState === 'complete'.
	DocumentComplete bool `json:"complete"`
}

// Detector detects frameworks on a page with a single evaluation.
type Detector struct {
	signatures []Signature
	script     string
}

// NewDetector creates a detector for all known signatures.
func NewDetector() *Detector {
	return NewDetectorFor(Signatures())
}

// NewDetectorFor creates a detector for the given signatures.
func NewDetectorFor(signatures []Signature) *Detector {
	return &Detector{
		signatures: signatures,
		script:     buildScript(signatures),
	}
}

func buildScript(signatures []Signature) string {
	var b strings.Builder
	b.WriteString("() => {\n\tconst probes = [\n")
	for _, sig := range signatures {
		fmt.Fprintf(&b, "\t\t[%q, () => %s],\n", string(sig.Type), sig.Probe)
	}
	b.WriteString(`	];
	const frameworks = [];
	for (const [name, probe] of probes) {
		try {
			if (probe()) frameworks.push(name);
		} catch (e) {}
	}
	return {frameworks, complete: document.readyState === 'complete'};
}`)
	return b.String()
}

// Script returns the detection script.
func (d *Detector) Script() string {
	return d.script
}

// Detect evaluates every probe on the page.
func (d *Detector) Detect(ctx context.Context, page browser.Page) (*DetectionResult, error) {
	var raw struct {
		Frameworks []string `json:"frameworks"`
		Complete   bool     `json:"complete"`
	}
	if err := page.Eval(ctx, d.script, &raw); err != nil {
		return nil, fmt.Errorf("framework detection: %w", err)
	}

	result := &DetectionResult{
		Frameworks:       make([]Type, 0, len(raw.Frameworks)),
		Primary:          TypeUnknown,
		DocumentComplete: raw.Complete,
	}
	for _, name := range raw.Frameworks {
		result.Frameworks = append(result.Frameworks, Type(name))
	}
	if len(result.Frameworks) > 0 {
		result.Primary = result.Frameworks[0]
	}
	result.IsSPA = len(result.Frameworks) > 0
	return result, nil
}
