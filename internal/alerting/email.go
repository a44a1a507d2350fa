package alerting

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EmailOptions parameterise the SMTP channel.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	StartTLS bool
	Timeout  time.Duration
}

// EmailChannel delivers alerts as multipart HTML mail over SMTP.
type EmailChannel struct {
	opts   EmailOptions
	logger zerolog.Logger
}

// NewEmailChannel constructs an SMTP channel.
func NewEmailChannel(opts EmailOptions, logger zerolog.Logger) *EmailChannel {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &EmailChannel{
		opts:   opts,
		logger: logger.With().Str("component", "channel_email").Logger(),
	}
}

// Name identifies the channel in filters and dispatch results.
func (c *EmailChannel) Name() string { return "email" }

// Send builds and transmits the alert mail.
func (c *EmailChannel) Send(ctx context.Context, alert Alert) ChannelResult {
	subject := fmt.Sprintf("[%s] Liquidation zone alert: %s", strings.ToUpper(string(alert.Severity)), alert.Symbol)
	msg, err := c.buildMessage(subject, renderText(alert), renderHTML(alert))
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("build mail: %v", err))
	}

	if err := c.transmit(ctx, msg); err != nil {
		return resultFail(c.Name(), fmt.Sprintf("smtp send: %v", err))
	}

	c.logger.Info().Str("severity", string(alert.Severity)).
		Int("recipients", len(c.opts.To)).
		Msg("alert mail sent")
	return resultOK(c.Name(), map[string]any{"recipients": len(c.opts.To)})
}

// TestConnection dials the server, negotiates STARTTLS/auth if
// configured, and quits without sending mail.
func (c *EmailChannel) TestConnection(ctx context.Context) ChannelResult {
	client, err := c.connect(ctx)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("smtp connect: %v", err))
	}
	defer client.Close()

	if err := client.Quit(); err != nil {
		return resultFail(c.Name(), fmt.Sprintf("smtp quit: %v", err))
	}
	return resultOK(c.Name(), nil)
}

func (c *EmailChannel) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))

	dialer := net.Dialer{Timeout: c.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, c.opts.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if c.opts.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: c.opts.Host}); err != nil {
				client.Close()
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if c.opts.Username != "" {
		auth := smtp.PlainAuth("", c.opts.Username, c.opts.Password, c.opts.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}

	return client, nil
}

func (c *EmailChannel) transmit(ctx context.Context, msg []byte) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(c.opts.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range c.opts.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := writer.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}

	return client.Quit()
}

func (c *EmailChannel) buildMessage(subject, textBody, htmlBody string) ([]byte, error) {
	buf := bytes.Buffer{}
	body := bytes.Buffer{}
	writer := multipart.NewWriter(&body)

	fmt.Fprintf(&buf, "From: %s\r\n", c.opts.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(c.opts.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())

	textPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(textBody)); err != nil {
		return nil, err
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func renderHTML(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString("<html><body>")
	builder.WriteString(fmt.Sprintf("<h2>%s Liquidation Zone Alert</h2>", strings.ToUpper(string(alert.Severity))))
	builder.WriteString("<table border=\"0\" cellpadding=\"4\">")
	rows := [][2]string{
		{"Symbol", alert.Symbol},
		{"Price", alert.CurrentPrice.StringFixed(2)},
		{"Zone", fmt.Sprintf("%s (%s side)", alert.ZonePrice.StringFixed(2), alert.ZoneSide)},
		{"Density", formatUSD(alert.ZoneDensity) + " USD"},
		{"Distance", alert.DistancePct.StringFixed(2) + "%"},
		{"Time", alert.Timestamp.UTC().Format(time.RFC3339) + " UTC"},
	}
	for _, row := range rows {
		builder.WriteString(fmt.Sprintf("<tr><td><b>%s</b></td><td>%s</td></tr>", row[0], html.EscapeString(row[1])))
	}
	builder.WriteString("</table>")
	if alert.Message != "" {
		builder.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(alert.Message)))
	}
	builder.WriteString("</body></html>")
	return builder.String()
}

var _ Channel = (*EmailChannel)(nil)
