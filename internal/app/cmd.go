package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はコンソールサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandToken はバックエンドAPIの認証トークンを保存することを示す。
	CommandToken Command = "token"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "token":
		return CommandToken
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// CommandArgs はサブコマンド名を除いた残りの引数を返す。
func CommandArgs(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}
