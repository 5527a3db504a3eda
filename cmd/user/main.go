// ユーザーサービスのエントリポイント。
// ユーザー登録、資格情報の検証、認証トークンの発行を担当する。
package main

import (
	"log"

	"github.com/nao1215/authgate/internal/user"
)

func main() {
	server, err := user.NewServer()
	if err != nil {
		log.Fatalf("ユーザーサービスの初期化に失敗: %v", err)
	}

	log.Println("ユーザーサービスを起動します")
	if err := server.Run(); err != nil {
		log.Fatalf("ユーザーサービスの起動に失敗: %v", err)
	}
}
