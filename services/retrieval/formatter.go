package retrieval

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/upb/context-retrieval/services/search"
	"golang.org/x/net/html"
)

const excerptWords = 30

var (
	bodyPaths     = []string{"content.rendered", "content", "body", "text"}
	excerptPaths  = []string{"excerpt.rendered", "excerpt", "summary"}
	fallbackPaths = []string{"description", "title.rendered", "title"}

	// licenseByType resolves a license when the document carries none.
	licenseByType = map[string]string{
		"docs":          "CC-BY-SA",
		"documentation": "CC-BY-SA",
		"post":          "CC-BY",
		"page":          "CC-BY",
		"product":       "proprietary",
	}

	dateLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	chunkIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:context-retrieval:chunk"))
)

// FormatChunk maps one provider document to a Chunk. It returns false when
// the document has no text left after stripping markup and whitespace.
func FormatChunk(doc search.Document, defaultLanguage string) (Chunk, bool) {
	data := gjson.ParseBytes(doc.Data)

	excerpt := firstText(data, excerptPaths)
	text := firstText(data, bodyPaths)
	if text == "" {
		text = excerpt
	}
	if text == "" {
		text = firstText(data, fallbackPaths)
	}
	if text == "" {
		return Chunk{}, false
	}

	meta := ChunkMetadata{
		SourceURL:  firstString(data, "url", "permalink", "link", "source_url"),
		Type:       strings.ToLower(firstString(data, "post_type", "type")),
		Date:       normalizeDate(firstString(data, "date_gmt", "date", "post_date", "published_at")),
		ContentID:  firstID(data, "content_id", "post_id", "ID"),
		Author:     firstString(data, "author_name", "author.name", "author"),
		Categories: categories(data.Get("categories")),
	}
	if meta.Type == "" {
		meta.Type = "post"
	}

	if l, ok := CanonicalLicense(firstString(data, "license")); ok {
		meta.License = l
	} else {
		meta.License = InferLicense(meta.Type)
	}

	if lang, ok := NormalizeLanguage(firstString(data, "language", "lang", "locale")); ok {
		meta.Language = lang
	} else {
		meta.Language = defaultLanguage
	}

	if wc := data.Get("word_count"); wc.Type == gjson.Number && wc.Int() > 0 {
		meta.WordCount = int(wc.Int())
	} else {
		meta.WordCount = len(strings.Fields(text))
	}

	if excerpt != "" {
		meta.Excerpt = excerpt
	} else {
		meta.Excerpt = firstWords(text, excerptWords)
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewSHA1(chunkIDNamespace,
			[]byte(meta.SourceURL+"|"+strconv.FormatInt(meta.ContentID, 10)+"|"+text)).String()
	}

	return Chunk{
		ID:       id,
		Text:     text,
		Score:    doc.Score,
		Metadata: meta,
	}, true
}

// FormatChunks formats documents in order, dropping those without text.
func FormatChunks(docs []search.Document, defaultLanguage string) []Chunk {
	chunks := make([]Chunk, 0, len(docs))
	for _, doc := range docs {
		if c, ok := FormatChunk(doc, defaultLanguage); ok {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// InferLicense returns the license implied by a content type.
func InferLicense(contentType string) string {
	if l, ok := licenseByType[contentType]; ok {
		return l
	}
	return "proprietary"
}

// StripMarkup removes HTML tags, drops script and style bodies, decodes
// entities and collapses whitespace.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// firstText returns the first string field that is non-empty after stripping.
func firstText(data gjson.Result, paths []string) string {
	for _, p := range paths {
		if r := data.Get(p); r.Type == gjson.String {
			if s := StripMarkup(r.Str); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstString returns the first scalar field with a non-blank value.
func firstString(data gjson.Result, paths ...string) string {
	for _, p := range paths {
		r := data.Get(p)
		if r.Type != gjson.String && r.Type != gjson.Number {
			continue
		}
		if s := strings.TrimSpace(r.String()); s != "" {
			return s
		}
	}
	return ""
}

func firstID(data gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		r := data.Get(p)
		var id int64
		switch r.Type {
		case gjson.Number:
			id = r.Int()
		case gjson.String:
			id, _ = strconv.ParseInt(strings.TrimSpace(r.Str), 10, 64)
		}
		if id > 0 {
			return id
		}
	}
	return 0
}

func categories(r gjson.Result) []string {
	out := []string{}
	if !r.IsArray() {
		if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			out = append(out, strings.TrimSpace(r.Str))
		}
		return out
	}
	r.ForEach(func(_, item gjson.Result) bool {
		name := item.String()
		if item.IsObject() {
			name = item.Get("name").String()
		}
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
		return true
	})
	return out
}

// normalizeDate renders a provider date as RFC 3339 UTC, or "" when unparseable.
// Dates without a zone are taken as UTC.
func normalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "…"
}
