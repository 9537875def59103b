package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestSanitizeMessage_StripsMarkup はHTMLが除去されることを検証する。
func TestSanitizeMessage_StripsMarkup(t *testing.T) {
	s := NewMessageSanitizer(0)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"平文はそのまま", "Credenciales inválidas", "Credenciales inválidas"},
		{"タグを除去", "<b>Credenciales</b> inválidas", "Credenciales inválidas"},
		{"scriptは中身ごと除去", "Error<script>alert(1)</script>", "Error"},
		{"イベント属性を除去", `<img src=x onerror="alert(1)">Usuario bloqueado`, "Usuario bloqueado"},
		{"空白をまとめる", "  Usuario \n\t no encontrado  ", "Usuario no encontrado"},
		{"記号はエスケープしない", `El usuario "ana" no existe & <b>revisa</b> l'email`, `El usuario "ana" no existe & revisa l'email`},
		{"文字参照を戻す", "Contrase&ntilde;a &amp; usuario", "Contraseña & usuario"},
		{"空文字列", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeMessage(tt.input); got != tt.want {
				t.Errorf("SanitizeMessage(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeMessage_Truncates は最大長で切り詰められることを検証する。
func TestSanitizeMessage_Truncates(t *testing.T) {
	s := NewMessageSanitizer(10)

	got := s.SanitizeMessage(strings.Repeat("ñ", 50))
	if utf8.RuneCountInString(got) != 11 {
		t.Errorf("rune count = %d, want 11 (10 + ellipsis)", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated message should end with an ellipsis: %q", got)
	}
}

// TestSanitizeMessage_InvalidUTF8 は不正なUTF-8が除去されることを検証する。
func TestSanitizeMessage_InvalidUTF8(t *testing.T) {
	s := NewMessageSanitizer(0)
	got := s.SanitizeMessage("Error\xff\xfe de acceso")
	if !utf8.ValidString(got) {
		t.Errorf("result is not valid UTF-8: %q", got)
	}
	if got != "Error de acceso" {
		t.Errorf("got %q, want %q", got, "Error de acceso")
	}
}

// TestSanitizeMessage_Idempotent は同じ入力で同じ出力になることを検証する。
func TestSanitizeMessage_Idempotent(t *testing.T) {
	s := NewMessageSanitizer(0)
	in := "<p>Contraseña <em>incorrecta</em></p>"
	first := s.SanitizeMessage(in)
	if second := s.SanitizeMessage(first); second != first {
		t.Errorf("not idempotent: %q then %q", first, second)
	}
}
