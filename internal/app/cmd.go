package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーとして起動する。引数が無い場合の既定。
	CommandServe Command = "serve"
	// CommandWorker は保存期間を過ぎた分析を日次で削除するワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルの/healthを叩いて終了する。
	// curlの無いdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
	// CommandCreateAdmin は指定メールアドレスの登録済みユーザーを管理者にする。
	CommandCreateAdmin Command = "create-admin"
)

// commandSpec はサブコマンドの引数の書式と説明。
type commandSpec struct {
	args        string
	description string
}

var commands = map[Command]commandSpec{
	CommandServe:       {description: "APIサーバーを起動する（既定）"},
	CommandWorker:      {description: "分析データの保存期間クリーンアップを実行する"},
	CommandMigrate:     {description: "データベースマイグレーションを適用する"},
	CommandHealthcheck: {description: "起動中のサーバーの/healthを確認する"},
	CommandCreateAdmin: {args: "<email>", description: "登録済みユーザーを管理者にする"},
}

// commandOrder はUsageに表示する順序。
var commandOrder = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck, CommandCreateAdmin}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空、または未知のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd := Command(args[0]); isKnown(cmd) {
		return cmd
	}
	return CommandServe
}

func isKnown(cmd Command) bool {
	_, ok := commands[cmd]
	return ok
}

// commandArg はサブコマンドに続くi番目の引数を返す。無い場合は空文字列。
func commandArg(args []string, i int) string {
	if len(args) <= i+1 {
		return ""
	}
	return args[i+1]
}

// isHelp は先頭引数がヘルプ指定かどうかを返す。
func isHelp(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "help", "-h", "--help":
		return true
	}
	return false
}

// usageError はサブコマンドの書式をエラーとして返す。
func usageError(cmd Command) error {
	spec := commands[cmd]
	return fmt.Errorf("usage: revoai %s %s", cmd, spec.args)
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: revoai [command]\n\ncommands:\n")
	for _, cmd := range commandOrder {
		spec := commands[cmd]
		fmt.Fprintf(&b, "  %-28s %s\n", strings.TrimSpace(string(cmd)+" "+spec.args), spec.description)
	}
	return b.String()
}
