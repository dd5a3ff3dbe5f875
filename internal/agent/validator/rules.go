// internal/agent/validator/rules.go
package validator

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pageRule is a domain-specific structural check: does this document look
// like a live product/listing page rather than an error or bot-wall page?
type pageRule func(doc *goquery.Document) bool

// domainRules maps wholesaler domains to their structural checks. Domains
// without a specialized rule fall back to genericProductPage.
var domainRules = map[string]pageRule{
	"aliexpress.com":     aliexpressPage,
	"cjdropshipping.com": cjdropshippingPage,
}

func ruleFor(domain string) pageRule {
	if r, ok := domainRules[domain]; ok {
		return r
	}
	return genericProductPage
}

func aliexpressPage(doc *goquery.Document) bool {
	if doc.Find(".product-price, .uniform-banner-box-price, [class*=Price--]").Length() > 0 {
		return true
	}
	if doc.Find("[class*=pdp-info], .product-title-text").Length() > 0 {
		return true
	}
	// Search result grids count too: the derived-evidence path lands on
	// wholesale search pages, not product detail pages.
	return doc.Find("[class*=search-item], [class*=list--gallery]").Length() > 0
}

func cjdropshippingPage(doc *goquery.Document) bool {
	if doc.Find(".product-detail, .productDetail, [class*=productPrice]").Length() > 0 {
		return true
	}
	return doc.Find("[class*=product-card], [class*=goods-item]").Length() > 0
}

// genericProductPage checks for price, title and cart-like markers that most
// commerce pages share.
func genericProductPage(doc *goquery.Document) bool {
	markers := 0

	if doc.Find(`[class*=price], [id*=price], [itemprop=price]`).Length() > 0 {
		markers++
	}
	if title := doc.Find("title").Text(); strings.TrimSpace(title) != "" {
		markers++
	}
	if doc.Find(`[class*=cart], [id*=cart], button[class*=buy], [class*=add-to]`).Length() > 0 {
		markers++
	}

	return markers >= 2
}
