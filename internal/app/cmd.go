package app

// Command はairaバイナリの起動モード。
type Command string

const (
	// CommandServe はチャットゲートウェイと決済APIのHTTPサーバー。
	CommandServe Command = "serve"
	// CommandWorker は期限切れの購入待ちトランザクションを失効させるワーカー。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマを最新にして終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中サーバーの/healthを確認する。distrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数なし、または未知のコマンドはCommandServeになる。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// isUnknownCommand は先頭の引数が指定されていて、かつ未知のコマンドの場合にtrueを返す。
func isUnknownCommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	_, ok := commands[args[0]]
	return !ok
}
