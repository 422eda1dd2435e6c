// File: internal/browser/query.go
package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/lablnet/stepwright/api/schemas"
)

// queryJS locates every element matching a selector under a scope element
// and returns their absolute XPaths. Handles stay valid as long as the DOM
// shape above the element does not change, which is exactly the lifetime the
// engine expects between a resolve and the action that consumes it.
const queryJS = `(function(scopeXPath, type, value, limit) {
	function nodeFromXPath(xp) {
		if (!xp) { return document; }
		var r = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
		return r.singleNodeValue;
	}
	function absXPath(el) {
		if (!el || el.nodeType !== 1) { return ''; }
		if (el === document.documentElement) { return '/html'; }
		var ix = 1;
		var sib = el.previousElementSibling;
		while (sib) {
			if (sib.tagName === el.tagName) { ix++; }
			sib = sib.previousElementSibling;
		}
		return absXPath(el.parentElement) + '/' + el.tagName.toLowerCase() + '[' + ix + ']';
	}
	var scope = nodeFromXPath(scopeXPath);
	if (!scope) { return []; }
	var matches = [];
	if (type === 'xpath') {
		var expr = value;
		if (scope !== document && expr.charAt(0) === '/') { expr = '.' + expr; }
		var res = document.evaluate(expr, scope, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (var i = 0; i < res.snapshotLength; i++) { matches.push(res.snapshotItem(i)); }
	} else {
		var css;
		if (type === 'id') { css = '#' + CSS.escape(value); }
		else if (type === 'class') { css = '.' + CSS.escape(value); }
		else { css = value; }
		var root = scope === document ? document : scope;
		matches = Array.prototype.slice.call(root.querySelectorAll(css));
	}
	if (limit > 0 && matches.length > limit) { matches = matches.slice(0, limit); }
	var out = [];
	for (var j = 0; j < matches.length; j++) {
		var xp = absXPath(matches[j]);
		if (xp) { out.push(xp); }
	}
	return out;
})(%s, %s, %s, %d)`

// buildQueryJS renders the query expression for one (scope, selector) pair.
// Arguments are JSON-encoded so selector values cannot break out of the
// script.
func buildQueryJS(scope schemas.Handle, sel schemas.Selector, limit int) string {
	scopeArg, _ := jsoniter.MarshalToString(scope.XPath)
	typeArg, _ := jsoniter.MarshalToString(string(normalizeSelectorType(sel.Type)))
	valueArg, _ := jsoniter.MarshalToString(sel.Value)
	return fmt.Sprintf(queryJS, scopeArg, typeArg, valueArg, limit)
}

func normalizeSelectorType(t schemas.SelectorType) schemas.SelectorType {
	if t == "" {
		return schemas.SelectorXPath
	}
	return t
}

// elementJS wraps a per-element script body so it runs against the element a
// handle points at. The body sees the element as "el" and its return value
// is the expression result; a dangling handle yields null.
func elementJS(h schemas.Handle, body string) string {
	xpArg, _ := jsoniter.MarshalToString(h.XPath)
	return fmt.Sprintf(`(function(xp) {
	var r = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
	var el = r.singleNodeValue;
	if (!el) { return null; }
	return (function(el) { %s })(el);
})(%s)`, body, xpArg)
}
