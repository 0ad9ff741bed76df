// 初始化钱包密钥库：读入助记词，派生交易私钥，写进加密的 Badger 库。
// 之后 bot 只需要 CYCLEBET_SECRETS_PATH 和 CYCLEBET_MASTER_KEY 即可启动。
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/betbot/cyclebet/pkg/secretstore"
)

// 以太坊默认派生路径的第一个账户
const derivationPath = "m/44'/60'/0'/0/0"

func main() {
	var (
		storePath = flag.String("store", getenv("CYCLEBET_SECRETS_PATH", "data/secrets"), "密钥库路径")
		funder    = flag.String("funder", "", "资金钱包（Safe 代理）地址，可选")
	)
	flag.Parse()

	masterKey, err := secretstore.ParseKey(os.Getenv("CYCLEBET_MASTER_KEY"))
	if err != nil {
		fatal(err)
	}
	if masterKey == nil {
		fatal(errors.New("需要 CYCLEBET_MASTER_KEY（32 字节，base64 或 hex）"))
	}

	fmt.Fprintln(os.Stderr, "请输入助记词（12/15/18/21/24 个单词），输入完成后回车：")
	mnemonic := strings.TrimSpace(readLine())
	if mnemonic == "" {
		fatal(errors.New("助记词为空"))
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		fatal(fmt.Errorf("解析助记词失败: %w", err))
	}
	account, err := wallet.Derive(hdwallet.MustParseDerivationPath(derivationPath), false)
	if err != nil {
		fatal(fmt.Errorf("派生账户失败: %w", err))
	}
	privateKey, err := wallet.PrivateKeyHex(account)
	if err != nil {
		fatal(fmt.Errorf("导出私钥失败: %w", err))
	}

	store, err := secretstore.Open(secretstore.OpenOptions{Path: *storePath, EncryptionKey: masterKey})
	if err != nil {
		fatal(fmt.Errorf("打开密钥库失败: %w", err))
	}
	defer store.Close()

	if err := store.Set(secretstore.KeyMnemonic, mnemonic); err != nil {
		fatal(err)
	}
	if err := store.SaveWallet(&secretstore.WalletSecrets{
		PrivateKey:    privateKey,
		FunderAddress: strings.TrimSpace(*funder),
	}); err != nil {
		fatal(err)
	}

	fmt.Fprintf(os.Stderr, "已写入密钥库：%s\n", *storePath)
	fmt.Fprintf(os.Stderr, "签名地址：%s\n", account.Address.Hex())
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
