package filters

import (
	"strings"
	"unicode"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
)

// DetectScript 判断名称的主要书写体系
// 优先级: cyrillic > arabic > latin > mixed > other
// 只要出现西里尔字母即为cyrillic; 表情和标点不影响latin判断
func DetectScript(name string) models.Script {
	if strings.TrimSpace(name) == "" {
		return models.ScriptEmpty
	}

	var cyrillic, arabic, latin, otherLetters bool
	for _, r := range name {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic = true
		case unicode.Is(unicode.Arabic, r):
			arabic = true
		case unicode.Is(unicode.Latin, r):
			latin = true
		case unicode.IsLetter(r):
			otherLetters = true
		}
	}

	switch {
	case cyrillic:
		return models.ScriptCyrillic
	case arabic:
		return models.ScriptArabic
	case latin && !otherLetters:
		return models.ScriptLatin
	case latin && otherLetters:
		return models.ScriptMixed
	default:
		// 只有数字/符号或其他文字
		return models.ScriptOther
	}
}
