package provider

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const bodyMaxRunes = 1000

// collapseHTML 把正文里的 HTML 标记压成纯文本：去掉 script/style，
// 折叠空白，并按 rune 截断到统一上限。非 HTML 的输入原样清理空白后返回。
func collapseHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.ContainsAny(s, "<>") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style").Remove()
			s = doc.Text()
		}
	}

	// 折叠连续空白为单个空格
	s = strings.Join(strings.Fields(s), " ")

	if rs := []rune(s); len(rs) > bodyMaxRunes {
		s = string(rs[:bodyMaxRunes])
	}
	return s
}
