package app

import (
	"context"
	"fmt"
	"image"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// Drawer is the part of an SSD1306 the display loop needs.
type Drawer interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// ssd1306Addr is the address the upstream driver always uses.
const ssd1306Addr = 0x3C

// OpenDisplay initializes a 128x64 SSD1306 on bus.
func OpenDisplay(bus i2c.Bus, addr uint16) (*ssd1306.Dev, error) {
	if addr != ssd1306Addr {
		log.Warnf("display: driver only talks to 0x%02X, ignoring DISPLAY_I2C_ADDR=0x%02X", ssd1306Addr, addr)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize display at 0x%02X: %w", ssd1306Addr, err)
	}
	log.Infof("display: initialized at 0x%02X", ssd1306Addr)
	return dev, nil
}

func newFrame(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		d.Dot = fixed.P(0, 13*(i+1))
		d.DrawString(line)
	}
	return img
}

// PoseLines formats a cycle result for the 4-line panel.
func PoseLines(st State, ok bool) []string {
	if !ok {
		return []string{"", "Orientation", "Waiting..."}
	}
	return []string{
		fmt.Sprintf("R: %6.1f", st.Pose.Roll),
		fmt.Sprintf("P: %6.1f", st.Pose.Pitch),
		fmt.Sprintf("Y: %6.1f", st.Pose.Yaw),
		fmt.Sprintf("G:%5d %5d", st.Raw.Gyro[0], st.Raw.Gyro[1]),
	}
}

func drawLines(dev Drawer, lines []string) error {
	return dev.Draw(dev.Bounds(), newFrame(lines...), image.Point{})
}

// RunDisplay shows a splash screen, then redraws the latest pose every interval
// until ctx is done.
func RunDisplay(ctx context.Context, clock timeutil.Clock, dev Drawer, p *Pipeline, interval time.Duration) error {
	if err := drawLines(dev, []string{"", "  wiicon", "  remote"}); err != nil {
		log.Warnf("display: error showing splash: %v", err)
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
		st, ok := p.Last()
		if err := drawLines(dev, PoseLines(st, ok)); err != nil {
			log.Warnf("display: error updating: %v", err)
		}
	}
}
