// Package normalize canonicalizes free-text channel names into matchable
// keys. Playlist names and EPG display names for the same channel rarely
// agree byte-for-byte ("CCTV-1 高清", "中央电视台一套", "cctv1 综合"); both
// sides are reduced to the same key before any map lookup.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// brandReplacer collapses broadcaster brand aliases. Argument order matters:
// the longer form of each alias must come first.
var brandReplacer = strings.NewReplacer(
	"中央电视台", "cctv",
	"中央电视", "cctv",
	"央视", "cctv",
	"凤凰卫视", "凤凰",
)

// numberReplacer converts the Chinese "numeral+套" channel idiom to Arabic
// digits, then drops the bare 套 suffix. Compound numerals (十七套) are listed
// before their suffixes (七套) so they win at the same position.
var numberReplacer = strings.NewReplacer(
	"十七套", "17",
	"十六套", "16",
	"十五套", "15",
	"十四套", "14",
	"十三套", "13",
	"十二套", "12",
	"十一套", "11",
	"十套", "10",
	"九套", "9",
	"八套", "8",
	"七套", "7",
	"六套", "6",
	"五套", "5",
	"四套", "4",
	"三套", "3",
	"二套", "2",
	"一套", "1",
	"套", "",
)

// separatorReplacer collapses variant separators after the brand prefix so
// "CCTV-1", "CCTV_1" and "CCTV 1" all become "cctv1".
var separatorReplacer = strings.NewReplacer(
	"cctv-", "cctv",
	"cctv_", "cctv",
	"cctv ", "cctv",
)

// qualityTokens are quality/codec/category markers stripped from names.
// Order matters for overlapping tokens (hdr before hd).
var qualityTokens = []string{
	"高清", "超清", "标清", "蓝光", "频道",
	"综合", "财经", "综艺", "国际", "体育", "电影", "电视剧",
	"纪录", "记录", "科教", "戏曲", "新闻", "少儿", "音乐",
	"法制", "社会", "生活", "教育", "军事", "农业",
	"hevc", "h265", "h.265", "h264", "h.264",
	"hdr", "uhd", "fhd", "hd", "4k",
}

var bracketContentRx = []*regexp.Regexp{
	regexp.MustCompile(`【[^】]*】`),
	regexp.MustCompile(`\[[^\]]*\]`),
	regexp.MustCompile(`（[^）]*）`),
	regexp.MustCompile(`\([^)]*\)`),
	regexp.MustCompile(`\{[^}]*\}`),
	regexp.MustCompile(`<[^>]*>`),
	regexp.MustCompile(`《[^》]*》`),
}

var bracketGlyphRx = regexp.MustCompile(`[【】\[\]（）(){}<>《》]`)

var cctvNumberRx = regexp.MustCompile(`cctv(\d{1,2})(\+)?`)

// Key returns the primary canonical form of a raw channel name. It may be
// empty, in which case the name is unmatchable.
func Key(raw string) string {
	s := strings.ReplaceAll(raw, "＋", "+")
	s = strings.ToLower(strings.TrimSpace(s))

	s = brandReplacer.Replace(s)
	s = numberReplacer.Replace(s)

	for _, rx := range bracketContentRx {
		s = rx.ReplaceAllString(s, "")
	}
	s = bracketGlyphRx.ReplaceAllString(s, "")

	s = separatorReplacer.Replace(s)

	for _, tok := range qualityTokens {
		s = strings.ReplaceAll(s, tok, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '-', '_', '.', '·':
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Keys returns the match keys for a raw channel name: the primary key plus,
// when the name carries a trailing cctv+digits pattern, a secondary key that
// bridges numbered-channel variants. Empty for blank input — callers must
// treat that as "no match possible".
func Keys(raw string) []string {
	base := Key(raw)
	if base == "" {
		return nil
	}
	keys := []string{base}
	if cctv := extractCCTVKey(base); cctv != "" && cctv != base {
		keys = append(keys, cctv)
	}
	return keys
}

// extractCCTVKey pulls a "cctv<number>[+]" fragment out of a primary key so
// that e.g. "cctv1zh" and "cctv1" meet on the same secondary key.
func extractCCTVKey(normalized string) string {
	m := cctvNumberRx.FindStringSubmatch(normalized)
	if m == nil || m[1] == "" {
		return ""
	}
	return "cctv" + m[1] + m[2]
}
