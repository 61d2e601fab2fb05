/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package render

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"nebulascreen/internal/domain"
)

// BasicView is the resolved content of a basic widget. Options holds the
// effective options (defaults with the configured values merged over them).
type BasicView struct {
	Element string         `json:"element"`
	Text    string         `json:"text,omitempty"`
	Src     string         `json:"src,omitempty"`
	Alt     string         `json:"alt,omitempty"`
	Options domain.Options `json:"options"`
	// Refresh is set for live widgets that must be re-rendered periodically.
	Refresh time.Duration `json:"refresh,omitempty"`
}

type basicRenderer func(opts domain.Options, now time.Time) BasicView

var basicRenderers = map[domain.WidgetType]basicRenderer{
	domain.BasicText:      renderText,
	domain.BasicTitle:     renderTitle,
	domain.BasicImage:     renderImage,
	domain.BasicTime:      renderClock,
	domain.BasicMarquee:   renderMarquee,
	domain.BasicContainer: renderContainer,
}

// fallbacks apply when neither the catalog nor the widget supplies a value.
var fallbacks = map[domain.WidgetType]domain.Options{
	domain.BasicText:      {"content": "", "fontSize": 16.0, "color": "#FFFFFF", "fontWeight": 400.0, "textAlign": "left"},
	domain.BasicTitle:     {"content": "标题", "level": 1.0, "color": "#3BE4FE", "fontWeight": 700.0, "textAlign": "center"},
	domain.BasicImage:     {"src": "", "alt": "", "width": "100%", "height": "100%", "borderRadius": 0.0, "objectFit": "contain"},
	domain.BasicTime:      {"format": "YYYY-MM-DD HH:mm:ss", "timezone": "Asia/Shanghai", "fontSize": 24.0, "color": "#3BE4FE"},
	domain.BasicMarquee:   {"content": "滚动文字内容", "speed": 50.0, "direction": "left", "fontSize": 18.0, "color": "#FFFFFF"},
	domain.BasicContainer: {"backgroundColor": "transparent", "borderColor": "transparent", "borderWidth": 0.0, "borderRadius": 0.0, "padding": 0.0},
}

func renderText(o domain.Options, _ time.Time) BasicView {
	return BasicView{Element: "div", Text: o.String("content"), Options: o}
}

// titleSizes is the font size per heading level when none is configured.
var titleSizes = [...]float64{48, 40, 32, 28, 24, 20}

func renderTitle(o domain.Options, _ time.Time) BasicView {
	lvl := 1
	if v, ok := o.Float("level"); ok {
		lvl = min(max(int(v), 1), 6)
	}
	o["level"] = float64(lvl)
	if _, ok := o.Float("fontSize"); !ok {
		o["fontSize"] = titleSizes[lvl-1]
	}
	return BasicView{Element: fmt.Sprintf("h%d", lvl), Text: o.String("content"), Options: o}
}

func renderImage(o domain.Options, _ time.Time) BasicView {
	return BasicView{Element: "img", Src: o.String("src"), Alt: o.String("alt"), Options: o}
}

func renderMarquee(o domain.Options, _ time.Time) BasicView {
	switch o.String("direction") {
	case "left", "right", "up", "down":
	default:
		o["direction"] = "left"
	}
	return BasicView{Element: "marquee", Text: o.String("content"), Options: o}
}

func renderContainer(o domain.Options, _ time.Time) BasicView {
	return BasicView{Element: "section", Options: o}
}

// ClockInterval is how often a clock widget re-renders.
const ClockInterval = time.Second

func renderClock(o domain.Options, now time.Time) BasicView {
	if loc, err := time.LoadLocation(o.String("timezone")); err == nil {
		now = now.In(loc)
	}
	return BasicView{Element: "time", Text: FormatClock(o.String("format"), now), Options: o, Refresh: ClockInterval}
}

// FormatClock expands YYYY, YY, MM, DD, HH, mm and ss in layout. Other text is
// kept verbatim.
func FormatClock(layout string, t time.Time) string {
	if layout == "" {
		layout = "YYYY-MM-DD HH:mm:ss"
	}
	r := strings.NewReplacer(
		"YYYY", fmt.Sprintf("%04d", t.Year()),
		"YY", fmt.Sprintf("%02d", t.Year()%100),
		"MM", fmt.Sprintf("%02d", int(t.Month())),
		"DD", fmt.Sprintf("%02d", t.Day()),
		"HH", fmt.Sprintf("%02d", t.Hour()),
		"mm", fmt.Sprintf("%02d", t.Minute()),
		"ss", fmt.Sprintf("%02d", t.Second()),
	)
	return r.Replace(layout)
}
