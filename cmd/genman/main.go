//go:build ignore

// genman generates the draglat man page.
// Usage: go run cmd/genman/main.go > draglat.1
package main

import (
	"fmt"
	"os"
)

func main() {
	// Use a fixed date for reproducible builds/CI
	date := "October 2026"

	manpage := fmt.Sprintf(`.TH DRAGLAT 1 "%s" "draglat 0.2.0" "User Commands"
.SH NAME
draglat \- measure touch drag latency against a laser beam
.SH SYNOPSIS
.B draglat
[\fIflags\fR] \fBsimulate\fR
.br
.B draglat
[\fIflags\fR] \fBanalyze\fR \fIfile\fR
.SH DESCRIPTION
.B draglat
records finger positions reported by a touch panel and the times a laser beam
across the screen is interrupted, both on the clock of a timing box. It then
finds the time shift that makes the reported positions at the beam crossings
agree best. That shift is the drag latency.
.PP
\fBsimulate\fR runs the full measurement against a simulated timing box on a
pseudo-terminal and a simulated panel.
\fBanalyze\fR replays a raw event dump written with \fB\-\-raw\fR.
.SH OPTIONS
.TP
.B \-c, \-\-config \fIfile\fR
Read settings from a TOML, YAML or JSON file. Explicit flags override it.
.TP
.B \-p, \-\-profile \fIname\fR
Simulated panel preset. See \fB\-\-list\-profiles\fR.
.TP
.B \-\-latency \fIduration\fR
Simulated panel latency. Example: \fB\-\-latency 45ms\fR
.TP
.B \-j, \-\-jitter \fIduration\fR
Uniform per-sample jitter in [\-jitter, +jitter].
.TP
.B \-d, \-\-duration \fIduration\fR
Recording time when stdin is not a terminal. Default 6s.
.TP
.B \-\-seed \fIint\fR
Random seed for jitter. 0 uses the current time.
.TP
.B \-\-sync\-timeout \fIduration\fR
Give up on clock sync after this long. Default 5s.
.TP
.B \-\-axis \fIx|y\fR
Coordinate that moves across the beam. Default y.
.TP
.B \-\-raw
Print every laser and touch event before the analysis.
.TP
.B \-w, \-\-watch
With \fBanalyze\fR, analyze again whenever the file is rewritten.
.TP
.B \-\-log\-level \fIlevel\fR, \-\-log\-format \fIformat\fR
Diagnostic logging on stderr: debug, info, warn, error; text or json.
.TP
.B \-L, \-\-list\-profiles
List simulated panel presets.
.TP
.B \-v, \-\-version
Show version.
.SH KEYS
On a terminal, \fBsimulate\fR is driven by single keys:
\fBs\fR start, \fBr\fR restart, \fBf\fR finish, \fBq\fR quit.
.SH EXAMPLES
.PP
.RS
.nf
draglat simulate
draglat \-p sluggish \-\-duration 10s simulate
draglat \-\-raw simulate > run.log
draglat \-\-watch analyze run.log
.fi
.RE
.SH EXIT STATUS
0 on a successful measurement, 1 on bad flags, config or input, 2 when the
measurement was aborted for lack of data, wrong sensor polarity or failed
clock sync.
.SH SEE ALSO
.BR stty (1)
`, date)

	fmt.Fprint(os.Stdout, manpage)
}
