package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// maxAvatarWidth 真实头像的最大自然宽度
	maxAvatarWidth = 200
	minAvatarRatio = 0.8
	maxAvatarRatio = 1.2
)

// AvatarInfo 头像分类结果
type AvatarInfo struct {
	URL       string
	IsDefault bool
}

// ClassifyAvatar 判断范围内的图片是否为真实头像
// 没有图片视为"无头像"而不是"未知"
func ClassifyAvatar(img *goquery.Selection, placeholders []string) AvatarInfo {
	if img == nil || img.Length() == 0 {
		return AvatarInfo{IsDefault: true}
	}

	src := imageSource(img)
	if src == "" {
		return AvatarInfo{IsDefault: true}
	}
	if IsPlaceholderAvatar(src, placeholders) {
		return AvatarInfo{URL: src, IsDefault: true}
	}

	w, h, known := naturalSize(img)
	if !known {
		return AvatarInfo{URL: src}
	}
	ratio := float64(w) / float64(h)
	genuine := ratio >= minAvatarRatio && ratio <= maxAvatarRatio && w <= maxAvatarWidth
	return AvatarInfo{URL: src, IsDefault: !genuine}
}

// IsPlaceholderAvatar 地址是否命中任一默认头像特征
func IsPlaceholderAvatar(src string, placeholders []string) bool {
	lower := strings.ToLower(src)
	for _, sig := range placeholders {
		if sig == "" {
			continue
		}
		if strings.Contains(src, sig) || strings.Contains(lower, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}

// imageSource 取src,懒加载图片回退到srcset第一项
func imageSource(img *goquery.Selection) string {
	if src := strings.TrimSpace(img.AttrOr("src", "")); src != "" && !strings.HasPrefix(src, "data:image/gif") {
		return src
	}
	if srcset := strings.TrimSpace(img.AttrOr("srcset", "")); srcset != "" {
		if fields := strings.Fields(strings.Split(srcset, ",")[0]); len(fields) > 0 {
			return fields[0]
		}
	}
	return strings.TrimSpace(img.AttrOr("data-src", ""))
}

// naturalSize 读取快照写入的自然尺寸,缺失时回退到width/height属性
func naturalSize(img *goquery.Selection) (int, int, bool) {
	w, h := atoi(img.AttrOr(AttrNaturalW, "")), atoi(img.AttrOr(AttrNaturalH, ""))
	if w > 0 && h > 0 {
		return w, h, true
	}
	w, h = atoi(img.AttrOr("width", "")), atoi(img.AttrOr("height", ""))
	if w > 0 && h > 0 {
		return w, h, true
	}
	return 0, 0, false
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if err != nil {
		return 0
	}
	return n
}
