// Package pages はアップロードされた文書の印刷ページ数を判定します。
package pages

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultPages は信頼できるページ数が得られない場合に使うページ数です。
const DefaultPages = 1

const pdfMediaType = "application/pdf"

// Kind は文書の種別です。
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindOther Kind = "other"
)

var (
	ErrEmptyDocument     = errors.New("pages: document is empty")
	ErrNoPages           = errors.New("pages: parser reported no pages")
	ErrParserUnavailable = errors.New("pages: parser is not configured")
	ErrEncrypted         = errors.New("pages: encrypted document")
)

// Document はユーザーが選択したファイル1件を表します。
type Document struct {
	Name      string // 元のファイル名
	MediaType string // 申告されたメディアタイプ（空の場合あり）
	Content   []byte
}

// Result はページ数判定の結果です。Pages は常に1以上です。
type Result struct {
	Pages     int   `json:"pages"`
	Succeeded bool  `json:"succeeded"`
	Kind      Kind  `json:"kind"`
	Reason    error `json:"-"`
}

// Failed は解析を試みて失敗した場合に true を返します。
func (r Result) Failed() bool {
	return r.Reason != nil
}

// Warning は利用者向けの補足メッセージを返します。問題がなければ空文字です。
func (r Result) Warning() string {
	if r.Reason == nil {
		return ""
	}
	if errors.Is(r.Reason, ErrEncrypted) {
		return "パスワード保護されたPDFのためページ数を取得できませんでした。1ページとして計算します。"
	}
	return "PDFのページ数を取得できませんでした。1ページとして計算します。"
}

// Classify は申告メディアタイプと拡張子から文書種別を判定します。
// どちらも汎用的で判断できない場合のみ内容のシグネチャを確認します。
func Classify(doc Document) Kind {
	mediaType := normalizeMediaType(doc.MediaType)
	if mediaType == pdfMediaType || mediaType == "application/x-pdf" {
		return KindPDF
	}

	ext := strings.ToLower(filepath.Ext(doc.Name))
	if ext == ".pdf" {
		return KindPDF
	}

	generic := mediaType == "" || mediaType == "application/octet-stream"
	if generic && ext == "" && len(doc.Content) > 0 {
		if mimetype.Detect(doc.Content).Is(pdfMediaType) {
			return KindPDF
		}
	}
	return KindOther
}

// DisplayName は拡張子から表示用の文書種別名を返します。
func DisplayName(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "pdf":
		return "PDF document"
	case "doc", "docx":
		return "Word document"
	case "txt":
		return "Text file"
	case "jpg", "jpeg", "png":
		return "Image file"
	default:
		return "Document"
	}
}

func normalizeMediaType(v string) string {
	if i := strings.Index(v, ";"); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
