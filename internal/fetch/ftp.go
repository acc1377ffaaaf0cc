package fetch

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/jlaffaye/ftp"
)

// getFTP retrieves u.Path from an FTP server. Credentials come from the URL
// userinfo; anonymous login is used otherwise.
func (c *Client) getFTP(ctx context.Context, u *url.URL, dst string) (int64, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(c.ftpTimeout))
	if err != nil {
		return 0, fmt.Errorf("ftp dial %s: %w", addr, err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return 0, fmt.Errorf("ftp login %s: %w", addr, err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return 0, fmt.Errorf("ftp retr %s: %w", u.String(), err)
	}
	defer resp.Close()

	return writeFile(dst, resp)
}
