package scraper

import (
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/pinterest-pipeline/internal/models"
)

// ErrEmptyPin is returned for cards that expose neither a title nor an
// image; such fragments are usually layout scaffolding, not real pins.
var ErrEmptyPin = errors.New("pin has neither title nor image")

const pinBaseURL = "https://www.pinterest.com"

// Selector chains per field. Pinterest's markup shifts between experiments,
// so each field is tried against several selectors in order of specificity.
var (
	titleSelectors = []string{
		`[data-test-id="pinrep-title"]`,
		`h3`,
		`[class*="title"]`,
		`[class*="Title"]`,
	}
	descriptionSelectors = []string{
		`[data-test-id="pinrep-description"]`,
		`[class*="description"]`,
		`[class*="Description"]`,
		`p`,
	}
	boardSelectors = []string{
		`[data-test-id="board-name"]`,
		`[class*="board"]`,
		`[class*="Board"]`,
	}
	authorSelectors = []string{
		`[data-test-id="username"]`,
		`a[href*="/@"]`,
		`[class*="username"]`,
		`[class*="Username"]`,
	}
	saveCountSelectors = []string{
		`[data-test-id="save-count"]`,
		`[class*="save"]`,
		`[class*="Save"]`,
	}
)

// ParsePin extracts a raw pin record from one pin card's HTML fragment.
// Missing fields stay empty; the cleaner fills in defaults later.
func ParsePin(html string, now time.Time) (models.RawPin, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.RawPin{}, err
	}

	pin := models.RawPin{
		Title:     firstText(doc, titleSelectors),
		BoardName: firstText(doc, boardSelectors),
		Author:    firstText(doc, authorSelectors),
		SaveCount: firstText(doc, saveCountSelectors),
		ScrapedAt: now,
	}

	pin.Description = extractDescription(doc, pin.Title)
	pin.ImageURL = extractImageURL(doc)
	pin.PinLink = extractPinLink(doc)

	if pin.Title == "" && pin.ImageURL == "" {
		return models.RawPin{}, ErrEmptyPin
	}

	return pin, nil
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// extractDescription skips candidates that merely repeat the title.
func extractDescription(doc *goquery.Document, title string) string {
	for _, selector := range descriptionSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" && text != title {
			return text
		}
	}
	return ""
}

func extractImageURL(doc *goquery.Document) string {
	img := doc.Find("img").First()
	if img.Length() == 0 {
		return ""
	}

	src, ok := img.Attr("src")
	if !ok || src == "" {
		src, _ = img.Attr("data-src")
	}

	// Drop size parameters so the same image dedups across renditions.
	if idx := strings.Index(src, "?"); idx >= 0 {
		src = src[:idx]
	}

	return src
}

func extractPinLink(doc *goquery.Document) string {
	link := doc.Find(`a[href*="/pin/"]`).First()
	if link.Length() == 0 {
		link = doc.Find("a").First()
	}
	if link.Length() == 0 {
		return ""
	}

	href, _ := link.Attr("href")
	if href == "" {
		return ""
	}

	if !strings.HasPrefix(href, "http") {
		href = pinBaseURL + href
	}

	return href
}
