/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"os"

	"nebulascreen/internal/config"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/version"
)

func usage() {
	fmt.Println("NebulaScreen dashboard builder")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  nebulascreen version|-v|--version             Show version")
	fmt.Println("  nebulascreen serve [<addr>]                    Run the API server (default addr from config)")
	fmt.Println("  nebulascreen login [<email>]                   Sign in against the configured server")
	fmt.Println("  nebulascreen logout                            Forget the stored token")
	fmt.Println("  nebulascreen projects                          List your projects")
	fmt.Println("  nebulascreen catalog [<query>]                 List templates or search widgets")
	fmt.Println("  nebulascreen thumbnail <doc.json> <out.png>    Render a saved document as PNG")
	fmt.Println("  nebulascreen export-pdf <doc.json> <out.pdf>   Render a saved document as a PDF sheet")
}

func main() {
	cfg, cfgErr := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", cfgErr))
	}

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}

	var err error
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("NebulaScreen dashboard builder")
		fmt.Println(version.String())
		return
	case "serve":
		addr := cfg.Server.Addr
		if len(args) >= 3 {
			addr = args[2]
		}
		err = serve(cfg, addr)
	case "login":
		email := cfg.Client.Email
		if len(args) >= 3 {
			email = args[2]
		}
		err = login(cfg, email)
	case "logout":
		err = config.ClearToken()
		if err == nil {
			fmt.Println("Signed out.")
		}
	case "projects":
		err = listProjects(cfg)
	case "catalog":
		query := ""
		if len(args) >= 3 {
			query = args[2]
		}
		err = browseCatalog(cfg, query)
	case "thumbnail", "export-pdf":
		if len(args) < 4 {
			fmt.Println(args[1], "requires <doc.json> and <out>")
			usage()
			os.Exit(2)
		}
		err = exportDocument(args[1], args[2], args[3])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Println("unknown command:", args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		l.Error(args[1]+" failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
