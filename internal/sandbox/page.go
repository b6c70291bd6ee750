package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

// Script is one unit of source to run when a page loads
type Script struct {
	Name   string
	Source string
}

// PageScripts returns the scripts a page runs, in document order. A .js
// page is its own single script; an HTML page contributes its inline and
// src scripts. External src URLs are skipped.
func PageScripts(appID string, assets *Assets, page string) ([]Script, error) {
	asset, err := openPage(assets, page)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(path.Ext(asset.Name)) {
	case ".js", ".mjs":
		return []Script{{Name: asset.Name, Source: string(asset.Data)}}, nil
	case ".html", ".htm":
		return htmlScripts(appID, assets, asset)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPage, asset.Name)
	}
}

// openPage tries the target as given, then the conventional page forms
func openPage(assets *Assets, page string) (*Asset, error) {
	page = strings.TrimPrefix(page, "/")
	candidates := []string{page}
	if path.Ext(page) == "" {
		candidates = append(candidates, page+".html", page+".js", path.Join(page, "index.html"))
	}

	var lastErr error
	for _, c := range candidates {
		asset, err := assets.OpenLimit(c, utils.MaxScriptSize)
		if err == nil {
			return asset, nil
		}
		if errors.Is(err, ErrAssetTooLarge) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func htmlScripts(appID string, assets *Assets, page *Asset) ([]Script, error) {
	doc, err := parseHTML(page.Data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page.Name, err)
	}

	var scripts []Script
	var loadErr error
	doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if !isJavaScript(s.AttrOr("type", "")) {
			return true
		}

		src, hasSrc := s.Attr("src")
		if !hasSrc {
			scripts = append(scripts, Script{
				Name:   fmt.Sprintf("%s#inline%d", page.Name, i),
				Source: s.Text(),
			})
			return true
		}

		ref, ok := localPath(appID, src)
		if !ok {
			// Off-origin scripts never load
			return true
		}
		asset, err := assets.OpenLimit(assets.Sibling(page.Name, ref), utils.MaxScriptSize)
		if err != nil {
			loadErr = fmt.Errorf("script %s: %w", src, err)
			return false
		}
		scripts = append(scripts, Script{Name: asset.Name, Source: string(asset.Data)})
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return scripts, nil
}

// parseHTML decodes the page with a detected charset before parsing
func parseHTML(data []byte) (*goquery.Document, error) {
	enc := "utf-8"
	if result, err := chardet.NewHtmlDetector().DetectBest(data); err == nil && result != nil {
		enc = strings.ToLower(result.Charset)
	}

	reader, err := charset.NewReader(bytes.NewReader(data), "text/html; charset="+enc)
	if err != nil {
		return goquery.NewDocumentFromReader(bytes.NewReader(data))
	}
	return goquery.NewDocumentFromReader(reader)
}

func isJavaScript(scriptType string) bool {
	switch strings.ToLower(strings.TrimSpace(scriptType)) {
	case "", "text/javascript", "application/javascript", "text/ecmascript", "application/ecmascript":
		return true
	}
	return false
}
