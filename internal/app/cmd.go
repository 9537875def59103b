package app

// Command は tourbook のサブコマンド。
type Command string

const (
	// CommandServe はBFFサーバー（ログイン・ルートガード・APIプロキシ）を起動する。
	CommandServe Command = "serve"
	// CommandWorker は監査ログの保持期間クリーンアップを日次で実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は auth_events テーブルのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーの /health を叩く。
	// distrolessイメージにはcurlがないため、Dockerのヘルスチェックで使う。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand は os.Args[1:] の先頭からサブコマンドを決める。
// 空または未知の値はserveとして扱う。2番目以降の引数は見ない。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck:
		return cmd
	default:
		return CommandServe
	}
}

// RequiresDatabase はDATABASE_URLなしでは実行できないコマンドかを返す。
// serveは監査ログなしでも動くため含まない。
func (c Command) RequiresDatabase() bool {
	return c == CommandWorker || c == CommandMigrate
}
