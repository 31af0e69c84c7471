package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePinFullCard(t *testing.T) {
	html := `<div data-test-id="pin">
		<div data-test-id="pinrep-title">Data Science Roadmap</div>
		<div data-test-id="pinrep-description">A complete guide for beginners</div>
		<img src="https://i.pinimg.com/236x/ab/cd/ef.jpg?fit=crop&w=236"/>
		<a href="/pin/123456/">open</a>
		<div data-test-id="board-name">Learning</div>
		<a href="/@janedoe"><span data-test-id="username">janedoe</span></a>
		<div data-test-id="save-count">1.2K</div>
	</div>`

	now := time.Now()
	pin, err := ParsePin(html, now)
	require.NoError(t, err)

	assert.Equal(t, "Data Science Roadmap", pin.Title)
	assert.Equal(t, "A complete guide for beginners", pin.Description)
	assert.Equal(t, "https://i.pinimg.com/236x/ab/cd/ef.jpg", pin.ImageURL)
	assert.Equal(t, "https://www.pinterest.com/pin/123456/", pin.PinLink)
	assert.Equal(t, "Learning", pin.BoardName)
	assert.Equal(t, "janedoe", pin.Author)
	assert.Equal(t, "1.2K", pin.SaveCount)
	assert.Equal(t, now, pin.ScrapedAt)
}

func TestParsePinSelectorFallbacks(t *testing.T) {
	// No data-test-id markup; the h3/class fallbacks must still find fields.
	html := `<div class="pinWrapper">
		<h3>Fallback Title</h3>
		<p>Fallback description text</p>
		<img data-src="https://i.pinimg.com/564x/11/22/33.jpg"/>
		<a href="https://www.pinterest.com/pin/987/">open</a>
	</div>`

	pin, err := ParsePin(html, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "Fallback Title", pin.Title)
	assert.Equal(t, "Fallback description text", pin.Description)
	assert.Equal(t, "https://i.pinimg.com/564x/11/22/33.jpg", pin.ImageURL)
	assert.Equal(t, "https://www.pinterest.com/pin/987/", pin.PinLink)
}

func TestParsePinDescriptionSkipsTitleEcho(t *testing.T) {
	html := `<div>
		<h3>Same Text</h3>
		<p>Same Text</p>
		<img src="https://i.pinimg.com/1.jpg"/>
	</div>`

	pin, err := ParsePin(html, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "Same Text", pin.Title)
	assert.Empty(t, pin.Description)
}

func TestParsePinImageOnly(t *testing.T) {
	html := `<div><img src="https://i.pinimg.com/solo.jpg"/></div>`

	pin, err := ParsePin(html, time.Now())
	require.NoError(t, err)

	assert.Empty(t, pin.Title)
	assert.Equal(t, "https://i.pinimg.com/solo.jpg", pin.ImageURL)
}

func TestParsePinEmptyCard(t *testing.T) {
	_, err := ParsePin(`<div><span>decoration</span></div>`, time.Now())
	assert.ErrorIs(t, err, ErrEmptyPin)
}

func TestParsePinRelativeLinkGetsAbsolutized(t *testing.T) {
	html := `<div><h3>t</h3><a href="/pin/42/">x</a></div>`

	pin, err := ParsePin(html, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "https://www.pinterest.com/pin/42/", pin.PinLink)
}
