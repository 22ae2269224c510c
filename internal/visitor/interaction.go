package visitor

import "fmt"

// Interaction selects the script run after readiness to surface lazy
// content before extraction.
type Interaction string

const (
	InteractionNone  Interaction = "none"
	InteractionSPA   Interaction = "spa"
	InteractionSmart Interaction = "smart-scroll"
)

// maxScrollSteps bounds smart scrolling on pages that keep growing.
const maxScrollSteps = 200

// spaInteractionScript scrolls down in half-screen steps, returns to the
// top and then hovers and focuses navigation controls so menus that
// render on demand get a chance to insert their links.
const spaInteractionScript = `async () => {
	const delay = ms => new Promise(resolve => setTimeout(resolve, ms));
	for (let i = 0; i < 5; i++) {
		window.scrollBy(0, window.innerHeight / 2);
		await delay(500);
	}
	window.scrollTo(0, 0);
	await delay(1000);
	const targets = document.querySelectorAll('nav a, .menu a, button, [role="button"]');
	for (const el of targets) {
		el.dispatchEvent(new Event('mouseenter'));
		el.dispatchEvent(new Event('focus'));
		await delay(100);
	}
	return true;
}`

// smartScrollScript walks to the bottom of the page, following the
// document as it grows, then returns to the top.
const smartScrollScript = `async (maxSteps) => {
	const delay = ms => new Promise(resolve => setTimeout(resolve, ms));
	const step = 300;
	let last = document.body ? document.body.scrollHeight : 0;
	let current = 0;
	for (let i = 0; current < last && i < maxSteps; i++) {
		window.scrollBy(0, step);
		current += step;
		await delay(500);
		const height = document.body ? document.body.scrollHeight : 0;
		if (height > last) last = height;
	}
	window.scrollTo(0, 0);
	await delay(1000);
	return true;
}`

// script returns the JS function and arguments for an interaction.
func (i Interaction) script() (string, []interface{}, error) {
	switch i {
	case InteractionSPA:
		return spaInteractionScript, nil, nil
	case InteractionSmart:
		return smartScrollScript, []interface{}{maxScrollSteps}, nil
	default:
		return "", nil, fmt.Errorf("unknown interaction %q", string(i))
	}
}

// Valid reports whether i names a known interaction.
func (i Interaction) Valid() bool {
	switch i {
	case "", InteractionNone, InteractionSPA, InteractionSmart:
		return true
	}
	return false
}

// clickFallbackScript clicks the first element routing to the target path.
// It reports whether anything was clicked.
const clickFallbackScript = `(url) => {
	let targetPath = url;
	try {
		targetPath = new URL(url).pathname;
	} catch (e) {}
	const els = document.querySelectorAll('a[href], [data-href], [data-to]');
	for (const el of els) {
		const href = el.getAttribute('href') || el.getAttribute('data-href') || el.getAttribute('data-to');
		if (href === targetPath || href === url) {
			el.click();
			return true;
		}
	}
	return false;
}`
