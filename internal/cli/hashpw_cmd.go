// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// hashpw_cmd.go - Password hash and one-time code secret generation.
//
// Command: hash-password [--cost N] [--totp --user NAME]
//
// Prompts twice without echo on a terminal; reads one line from stdin
// otherwise. The output is ready to paste into [[auth.users]].
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const hashUsage = `  sessionguard hash-password [--cost N]
  sessionguard hash-password --totp --user NAME`

// stdin is swapped by tests.
var stdin io.Reader = os.Stdin

// HashPasswordData is the JSON form of hash-password output.
type HashPasswordData struct {
	PasswordHash string `json:"password_hash"`
	TOTPSecret   string `json:"totp_secret,omitempty"`
	TOTPURL      string `json:"totp_url,omitempty"`
}

// HandleHashPassword handles the "hash-password" command.
func HandleHashPassword(args Args) error {
	cost := bcrypt.DefaultCost
	if v := args.Option("cost", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < bcrypt.MinCost || n > bcrypt.MaxCost {
			return usageErr("--cost must be between %d and %d", hashUsage, bcrypt.MinCost, bcrypt.MaxCost)
		}
		cost = n
	}
	withTOTP := args.Option("totp", "") == "true"
	user := args.Option("user", "")
	if withTOTP && user == "" {
		return usageErr("--totp needs --user for the authenticator label", hashUsage)
	}

	password, err := readNewPassword()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	data := HashPasswordData{PasswordHash: string(hash)}

	if withTOTP {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "sessionguard",
			AccountName: user,
		})
		if err != nil {
			return fmt.Errorf("failed to generate one-time code secret: %w", err)
		}
		data.TOTPSecret = key.Secret()
		data.TOTPURL = key.URL()
	}

	if args.JSON {
		return NewJSONResponse("hash-password", data).Print()
	}

	fmt.Fprintln(stdout, "[[auth.users]]")
	if user != "" {
		fmt.Fprintf(stdout, "username = %q\n", user)
	}
	fmt.Fprintf(stdout, "password_hash = %q\n", data.PasswordHash)
	if data.TOTPSecret != "" {
		fmt.Fprintf(stdout, "totp_secret = %q\n", data.TOTPSecret)
		fmt.Fprintln(stderr, DimStyle.Render("Authenticator URL: "+data.TOTPURL))
	}
	return nil
}

// readNewPassword asks twice on a terminal, or reads one line from stdin.
func readNewPassword() (string, error) {
	if !IsTTY() || stdin != os.Stdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", ErrEmptyInput
		}
		return line, nil
	}

	first, err := ReadPassword("New password: ")
	if err != nil {
		return "", err
	}
	second, err := ReadPassword("Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}
