/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"nebulascreen/internal/backend"
	"nebulascreen/internal/config"
	"nebulascreen/internal/export"
	"nebulascreen/internal/storage"

	"golang.org/x/term"
)

func newClient(cfg config.AppConfig) (*backend.Client, error) {
	token, err := config.LoadToken()
	if err != nil {
		return nil, err
	}
	return backend.NewClient(cfg.Client.BaseURL, token, cfg.Client.Timeout()), nil
}

func login(cfg config.AppConfig, email string) error {
	in := bufio.NewReader(os.Stdin)
	if strings.TrimSpace(email) == "" {
		fmt.Print("Email: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return err
		}
		email = strings.TrimSpace(line)
	}
	fmt.Print("Password: ")
	var password string
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return err
		}
		password = string(b)
	} else {
		line, err := in.ReadString('\n')
		if err != nil {
			return err
		}
		password = strings.TrimRight(line, "\r\n")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c := backend.NewClient(cfg.Client.BaseURL, "", cfg.Client.Timeout())
	res, err := c.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := config.SaveToken(res.Token); err != nil {
		return err
	}
	if cfg.Client.Email != email {
		cfg.Client.Email = email
		_ = config.Save(cfg)
	}
	fmt.Printf("Signed in as %s (token valid until %s)\n", res.User.Username, res.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func listProjects(cfg config.AppConfig) error {
	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	list, err := c.Projects(ctx, 1, 100)
	if errors.Is(err, backend.ErrUnauthorized) {
		return errors.New("not signed in; run: nebulascreen login")
	}
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No projects.")
		return nil
	}
	for _, p := range list {
		fmt.Printf("%s  %-30s  template=%s  updated=%s\n", p.ID, p.Name, p.TemplateID, p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func browseCatalog(cfg config.AppConfig, query string) error {
	c := backend.NewClient(cfg.Client.BaseURL, "", cfg.Client.Timeout())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if strings.TrimSpace(query) != "" {
		hits, err := c.Search(ctx, query)
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Printf("%-20s  %s\n", h.Entry.Type, h.Entry.Name)
		}
		return nil
	}
	page, err := c.Templates(ctx, "", 1, 50)
	if err != nil {
		return err
	}
	for _, t := range page.Items {
		fmt.Printf("%-20s  %-10s  %s\n", t.ID, t.Category, t.Name)
	}
	fmt.Printf("%d template(s)\n", page.Total)
	return nil
}

func exportDocument(kind, in, out string) error {
	doc, err := storage.LoadDocument(in)
	if err != nil {
		return err
	}
	if kind == "thumbnail" {
		err = export.ExportPNG(out, doc, export.PNGOptions{Labels: true})
	} else {
		err = export.ExportPDF(out, doc, export.PDFOptions{AreaTable: true})
	}
	if err != nil {
		return err
	}
	fmt.Println("Wrote", out)
	return nil
}
