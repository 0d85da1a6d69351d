package worker

import (
	"encoding/json"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gocolly/colly/v2"

	"github.com/mostafazog/mro-harvest/pkg/models"
)

// parseProduct extracts the item fields from a product page. Selectors fall
// back from microdata to common class names; absent fields are omitted so
// completeness scoring stays meaningful.
func parseProduct(e *colly.HTMLElement, pageURL string) map[string]string {
	fields := map[string]string{models.IdentityField: pageURL}

	setField(fields, "name", firstText(e,
		"[itemprop=name]", "h1.product-title", "h1"))
	setField(fields, "price", firstOf(
		e.ChildAttr("[itemprop=price]", "content"),
		firstText(e, "[itemprop=price]", ".price", ".product-price")))
	setField(fields, "sku", firstText(e, "[itemprop=sku]", ".sku"))
	setField(fields, "brand", firstText(e, "[itemprop=brand]", ".brand"))

	if images := productImages(e); len(images) > 0 {
		data, err := json.Marshal(images)
		if err == nil {
			fields["images"] = string(data)
		}
	}

	if md := descriptionMarkdown(e, pageURL); md != "" {
		fields["description"] = md
	}

	return fields
}

// descriptionMarkdown converts the page's description block to markdown.
func descriptionMarkdown(e *colly.HTMLElement, pageURL string) string {
	for _, selector := range []string{"[itemprop=description]", ".description", "#description"} {
		sel := e.DOM.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		rawHTML, err := sel.Html()
		if err != nil {
			continue
		}
		md, err := htmltomarkdown.ConvertString(rawHTML)
		if err != nil {
			slog.Debug("description conversion failed", "url", pageURL, "error", err)
			return ""
		}
		return strings.TrimSpace(md)
	}
	return ""
}

func productImages(e *colly.HTMLElement) []string {
	images := e.ChildAttrs("[itemprop=image]", "src")
	if len(images) == 0 {
		if og := e.ChildAttr(`meta[property="og:image"]`, "content"); og != "" {
			images = []string{og}
		}
	}
	return images
}

func firstText(e *colly.HTMLElement, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(e.ChildText(selector)); text != "" {
			return text
		}
	}
	return ""
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func setField(fields map[string]string, name, value string) {
	if value != "" {
		fields[name] = value
	}
}
