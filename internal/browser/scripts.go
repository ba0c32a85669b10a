// internal/browser/scripts.go
package browser

// Page functions run with `this` bound to the target element via
// Runtime.callFunctionOn. Results are returned by value as JSON.

const inspectFunction = `function() {
	const el = this;
	const state = {attached: el.isConnected, visible: false, enabled: true, obstructed: false,
		width: 0, height: 0, text: "", value: "", tag: (el.tagName || "").toLowerCase()};
	if (!el.isConnected) {
		return state;
	}
	const rect = el.getBoundingClientRect();
	state.width = rect.width;
	state.height = rect.height;
	let hidden = false;
	for (let n = el; n && n.nodeType === Node.ELEMENT_NODE; n = n.parentElement) {
		const cs = window.getComputedStyle(n);
		if (cs.display === "none" || cs.visibility === "hidden" || cs.visibility === "collapse" || parseFloat(cs.opacity) === 0) {
			hidden = true;
			break;
		}
	}
	state.visible = !hidden && rect.width > 0 && rect.height > 0;
	state.enabled = !(el.disabled === true || el.getAttribute("aria-disabled") === "true");
	state.text = (el.innerText || el.textContent || "").replace(/\s+/g, " ").trim();
	if ("value" in el && typeof el.value === "string") {
		state.value = el.value;
	}
	if (state.visible) {
		const x = rect.left + rect.width / 2;
		const y = rect.top + rect.height / 2;
		if (x >= 0 && y >= 0 && x <= window.innerWidth && y <= window.innerHeight) {
			const hit = document.elementFromPoint(x, y);
			state.obstructed = !!hit && hit !== el && !el.contains(hit);
		}
	}
	return state;
}`

const clickTargetFunction = `function() {
	this.scrollIntoView({block: "center", inline: "center"});
	const r = this.getBoundingClientRect();
	const x = r.left + r.width / 2;
	const y = r.top + r.height / 2;
	const hit = document.elementFromPoint(x, y);
	let by = "";
	if (hit && hit !== this && !this.contains(hit)) {
		by = hit.tagName.toLowerCase();
		if (hit.id) {
			by += "#" + hit.id;
		}
		if (typeof hit.className === "string" && hit.className.trim() !== "") {
			by += "." + hit.className.trim().split(/\s+/).join(".");
		}
	}
	return {x: x, y: y, width: r.width, height: r.height, obstructedBy: by};
}`

const scriptClickFunction = `function() { this.click(); return true; }`

const clearFunction = `function() {
	this.focus();
	if ("value" in this) {
		this.value = "";
		this.dispatchEvent(new Event("input", {bubbles: true}));
		this.dispatchEvent(new Event("change", {bubbles: true}));
	}
	return true;
}`

const focusFunction = `function() { this.focus(); return document.activeElement === this; }`

const isFocusedFunction = `function() { return document.activeElement === this; }`
