package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mntlbot/rebalancer/pkg/secretstore"
)

// 把环境变量/.env 里的交易所凭证导入加密的 secretstore，
// 之后配置文件里就不再需要明文 API Key。
//
// 约定的变量名：MEXC_API_KEY / MEXC_SECRET_KEY / LBANK_API_KEY / LBANK_SECRET_KEY。
func main() {
	var (
		inPath    = flag.String("in", ".env", ".env 文件路径")
		dbPath    = flag.String("store", getenv("REBALANCER_SECRET_DB", "data/secrets.badger"), "secretstore 路径")
		secretKey = flag.String("secret-key", getenv("REBALANCER_SECRET_KEY", ""), "加密密钥（32 字节 base64/hex）")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("必须提供加密密钥：设置 REBALANCER_SECRET_KEY 或传 -secret-key"))
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      false,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written := 0
	for _, exch := range []string{"mexc", "lbank"} {
		upper := strings.ToUpper(exch)
		apiKey, secret := kv[upper+"_API_KEY"], kv[upper+"_SECRET_KEY"]
		if apiKey == "" && secret == "" {
			continue
		}
		if apiKey == "" || secret == "" {
			fatal(fmt.Errorf("%s 凭证不完整：%s_API_KEY 和 %s_SECRET_KEY 必须成对出现", exch, upper, upper))
		}
		if err := ss.SetCredentials(exch, apiKey, secret); err != nil {
			fatal(err)
		}
		written++
	}

	fmt.Fprintf(os.Stderr, "已导入 %d 个交易所的凭证到 %s\n", written, *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
