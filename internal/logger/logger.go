package logger

import (
	"io"
	"log/slog"
	"os"
)

// level はプロセス全体で共有するログレベル。
// 設定読み込み後にSetLevelForEnvで切り替える。
var level = new(slog.LevelVar)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w)
	slog.SetDefault(logger)
}

// SetLevelForEnv は実行環境に応じてログレベルを切り替える。
// developmentではDEBUG、それ以外はINFO。
func SetLevelForEnv(appEnv string) {
	if appEnv == "development" {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelInfo)
}
