package clean

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobintel/internal/config"
)

func testCleaner() *Cleaner {
	return New(config.CleanConfig{
		TokenBudget:   8000,
		CharsPerToken: 3.5,
		MinContentLen: 50,
		FloorLen:      100,
	})
}

func TestClean_StripsBoilerplate(t *testing.T) {
	html := `<html><head><script>var x=1;</script><style>.a{}</style></head>
	<body>
	<nav>Home | Jobs | About</nav>
	<div class="cookie-banner">We use cookies to improve your experience</div>
	<main>
	<h1>Senior Go Engineer</h1>
	<p>We are looking for an engineer to build our data pipeline. You will work with
	Postgres, Kafka, and Kubernetes on a distributed ingestion system.</p>
	</main>
	<div class="social-share">Share on LinkedIn</div>
	<footer>© 2026 Acme Corp. All rights reserved.</footer>
	</body></html>`

	out, err := testCleaner().Clean(html)
	require.NoError(t, err)

	assert.Contains(t, out, "Senior Go Engineer")
	assert.Contains(t, out, "data pipeline")
	assert.NotContains(t, out, "cookies")
	assert.NotContains(t, out, "var x=1")
	assert.NotContains(t, out, "Share on LinkedIn")
	assert.NotContains(t, out, "All rights reserved")
	assert.NotContains(t, out, "Home | Jobs")
}

func TestClean_HiddenElementsRemoved(t *testing.T) {
	html := `<html><body><main>
	<p>Visible description of the role with plenty of detail about responsibilities.</p>
	<div style="display:none">hidden seo keywords stuffing</div>
	<span aria-hidden="true">decorative</span>
	</main></body></html>`

	out, err := testCleaner().Clean(html)
	require.NoError(t, err)
	assert.Contains(t, out, "Visible description")
	assert.NotContains(t, out, "seo keywords")
	assert.NotContains(t, out, "decorative")
}

func TestClean_ContentCascade(t *testing.T) {
	t.Run("prefers job description class over main", func(t *testing.T) {
		html := `<html><body>
		<main>short generic wrapper text here that is long enough to pass the minimum</main>
		<div class="job-description">The actual posting body describing the role,
		the team, the stack, and what a week in the job looks like in detail.</div>
		</body></html>`

		out, err := testCleaner().Clean(html)
		require.NoError(t, err)
		assert.Contains(t, out, "actual posting body")
	})

	t.Run("skips selectors below minimum length", func(t *testing.T) {
		html := `<html><body>
		<main>tiny</main>
		<div id="content">A full posting with responsibilities, requirements and
		benefits described at length so it clears the content threshold.</div>
		</body></html>`

		out, err := testCleaner().Clean(html)
		require.NoError(t, err)
		assert.Contains(t, out, "responsibilities, requirements")
	})

	t.Run("falls back to largest div", func(t *testing.T) {
		html := `<html><body>
		<div>small</div>
		<div>This unmarked div holds the complete description of the position and
		happens to be the biggest block of text anywhere on the page.</div>
		</body></html>`

		out, err := testCleaner().Clean(html)
		require.NoError(t, err)
		assert.Contains(t, out, "biggest block of text")
	})

	t.Run("falls back to body", func(t *testing.T) {
		html := `<html><body>just a sentence</body></html>`
		out, err := testCleaner().Clean(html)
		require.NoError(t, err)
		assert.Equal(t, "just a sentence", out)
	})
}

func TestClean_WhitespaceNormalized(t *testing.T) {
	html := `<html><body><main><p>Line    one</p>


	<p>Line two</p>



	<p>Line three follows after many blank lines in the source markup.</p></main></body></html>`

	out, err := testCleaner().Clean(html)
	require.NoError(t, err)
	assert.NotContains(t, out, "  ")
	assert.NotContains(t, out, "\n\n\n")
}

func TestClean_TruncatesAtSentenceBoundary(t *testing.T) {
	c := New(config.CleanConfig{
		TokenBudget:   34, // 34 * 2.5 = 85 char budget
		CharsPerToken: 2.5,
		MinContentLen: 10,
		FloorLen:      20,
	})

	// 41 chars per sentence; the second period lands inside the
	// boundary-search window at the end of the budget.
	sentence := "This sentence is about forty characters. "
	html := "<html><body><main>" + strings.Repeat(sentence, 10) + "</main></body></html>"

	out, err := c.Clean(html)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 85)
	assert.True(t, strings.HasSuffix(out, "."), "expected sentence-boundary cut, got %q", out)
}

func TestClean_TruncationSearchShrinksToFloor(t *testing.T) {
	c := New(config.CleanConfig{
		TokenBudget:   40, // 40 * 2.5 = 100 char budget
		CharsPerToken: 2.5,
		MinContentLen: 10,
		FloorLen:      10,
	})

	// The only sentence boundary sits well below the last tenth of the
	// budget; the shrinking search must keep backing off until it finds it.
	html := "<html><body><main>Short intro sentence ends here. " + strings.Repeat("x", 200) + "</main></body></html>"

	out, err := c.Clean(html)
	require.NoError(t, err)
	assert.Equal(t, "Short intro sentence ends here.", out)
}

func TestClean_NoTruncationUnderBudget(t *testing.T) {
	html := `<html><body><main>Short posting text that fits well under the configured budget limit.</main></body></html>`
	out, err := testCleaner().Clean(html)
	require.NoError(t, err)
	assert.Contains(t, out, "fits well under")
}

func TestClean_MalformedHTML(t *testing.T) {
	// html.Parse is forgiving; unclosed tags still yield text.
	out, err := testCleaner().Clean("<div><p>unclosed but readable description of the job")
	require.NoError(t, err)
	assert.Contains(t, out, "unclosed but readable")
}
