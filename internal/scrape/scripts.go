package scrape

import (
	"fmt"

	"caselaw-proxy/config"
)

// The extraction rules run inside the rendered page as serialized scripts:
// pure data-in/data-out against the live DOM, evaluated through the browser
// driver. Selectors are injected as quoted literals from config.

// listScript selects the result rows, keeps at most maxResults, and projects
// each row to a result item. The description element conflates citation and
// summary in the portal markup, so both fields carry its text.
func listScript(sel config.PortalSelectors) string {
	return fmt.Sprintf(`(() => {
	const rows = Array.from(document.querySelectorAll(%q)).slice(0, %d);
	const items = rows.map((row) => {
		const link = row.querySelector(%q);
		const desc = row.querySelector(%q);
		const descText = desc ? desc.textContent.trim() : "";
		return {
			title: link && link.textContent.trim() ? link.textContent.trim() : %q,
			url: link && link.href ? link.href : null,
			citation: descText,
			summary: descText,
		};
	});
	return {
		items: items,
		confirmedEmpty: items.length === 0 && !!document.querySelector(%q),
	};
})()`, sel.ResultRows, maxResults, sel.TitleLink, sel.Description, unknownTitle, sel.NoResults)
}

// docScript picks the first present of primary container, secondary frame
// container, and the whole document body, and returns its title, visible
// text, and raw markup.
func docScript(sel config.PortalSelectors) string {
	return fmt.Sprintf(`(() => {
	const candidates = [%q, %q, "body"];
	for (const s of candidates) {
		const el = document.querySelector(s);
		if (el) {
			return {
				title: document.title || "",
				text: el.innerText || "",
				html: el.outerHTML || "",
			};
		}
	}
	return { title: document.title || "", text: "", html: "" };
})()`, sel.ContentPrimary, sel.ContentFrame)
}
