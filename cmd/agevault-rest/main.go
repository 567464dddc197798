/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package agevault-rest (Age Assertion Issuer REST Server) of agevault.
//
//
// Terms Of Service:
//
//
//     Schemes: https
//     Version: 0.1.0
//     License: SPDX-License-Identifier: Apache-2.0
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
// swagger:meta
package main

import (
	"os"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/spf13/cobra"

	"github.com/agevault/agevault/cmd/agevault-rest/keygencmd"
	"github.com/agevault/agevault/cmd/agevault-rest/startcmd"
)

// This is an application which starts the age assertion issuer API on given port.
func main() {
	rootCmd := &cobra.Command{
		Use: "agevault-rest",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	logger := log.New("agevault/agevault-rest")

	startCmd, err := startcmd.Cmd(&startcmd.HTTPServer{})
	if err != nil {
		logger.Fatalf(err.Error())
	}

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(keygencmd.Cmd(os.Stdout))

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("Failed to run agevault-rest: %s", err)
	}
}
