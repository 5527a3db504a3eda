// API Gatewayサービスのエントリポイント。
// アクセス判定表に基づく認可とバックエンドへのリクエストルーティングを担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"log"

	"github.com/nao1215/authgate/internal/gateway"
)

func main() {
	server, err := gateway.NewServer()
	if err != nil {
		log.Fatalf("Gatewayサーバーの初期化に失敗: %v", err)
	}

	log.Println("Gatewayサービスを起動します")
	if err := server.Run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
}
