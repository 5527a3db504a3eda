// Package policy はリクエストに対するアクセス条件の判定表を提供する。
//
// 判定表は (メソッド, パスパターン, 条件) の順序付きリストであり、先頭から評価して
// 最初に一致したルールの条件を採用する。どのルールにも一致しない場合は
// トークン必須として扱う（安全側に倒す）。
// 判定表は構築後に変更されないため、複数ゴルーチンから同時に参照できる。
package policy

import (
	"fmt"
	"strings"
)

// Condition はパスに対して要求されるアクセス条件を表す。
type Condition int

const (
	// Public は認証なしでアクセスを許可する条件。
	Public Condition = iota
	// IPAllowList は接続元IPが許可リストに含まれる場合のみ許可する条件。
	IPAllowList
	// RequireToken は有効な認証トークンの提示を要求する条件。
	RequireToken
)

// String はConditionの文字列表現を返す。
func (c Condition) String() string {
	switch c {
	case Public:
		return "public"
	case IPAllowList:
		return "ip-allow-list"
	case RequireToken:
		return "require-token"
	default:
		return "unknown"
	}
}

// Rule はひとつのアクセスルールを表す。
// Patternは完全一致（例: "/login"）または末尾"/**"による前方一致
// （例: "/orders/**"）のいずれかの形式を取る。
type Rule struct {
	// Method は対象のHTTPメソッド。空文字列はすべてのメソッドに一致する。
	Method string
	// Pattern は対象パスのパターン。
	Pattern string
	// Condition はパターンに一致したパスへ要求する条件。
	Condition Condition
}

// Table は順序付きアクセスルールの判定表。
type Table struct {
	// rules は評価順に並んだルール。
	rules []Rule
}

// NewTable はルール一覧から判定表を構築する。
// 空のパターン、または同一メソッド・同一パターンの重複が含まれる場合は
// エラーを返す。これは起動時の設定不備であり、呼び出し側はプロセスを
// 終了させるべきである。
func NewTable(rules []Rule) (*Table, error) {
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("アクセスルール%d: パターンが空です", i)
		}
		key := r.Method + " " + r.Pattern
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("アクセスルール%d: メソッド %q パターン %q が重複しています", i, r.Method, r.Pattern)
		}
		seen[key] = struct{}{}
	}

	copied := make([]Rule, len(rules))
	copy(copied, rules)
	return &Table{rules: copied}, nil
}

// Match はメソッドとパスに一致する最初のルールの条件を返す。
// どのルールにも一致しない場合はRequireTokenを返す。
func (t *Table) Match(method, path string) Condition {
	for _, r := range t.rules {
		if r.Method != "" && r.Method != method {
			continue
		}
		if matchPattern(r.Pattern, path) {
			return r.Condition
		}
	}
	return RequireToken
}

// matchPattern はパスがパターンに一致するかを判定する。
// 末尾が"/**"のパターンは前方一致、それ以外は完全一致で評価する。
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == pattern
}
