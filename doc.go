// Package samp exchanges tables with astronomy applications such as TOPCAT and
// Aladin over the SAMP Standard Profile.
//
// Hub is a standalone hub. HubConnection is a registered client that binds
// handlers per MType and sends notifications and calls through the hub. Proxy
// builds on a HubConnection: it writes tables as FITS files to a scratch
// directory, offers them with table.load.fits and records the tables and row
// selections other applications send back.
//
//	p, err := samp.NewProxy(ctx, samp.ProxyConfig{})
//	if err != nil {
//		return err
//	}
//	defer p.Close(ctx)
//
//	t, _ := fitstable.FromMatrix(rows, []string{"ra", "dec", "mag"})
//	err = p.Send(ctx, t, "stars")
//	...
//	err = p.SendRows(ctx, "stars", []int{3, 6, 15})
//	err = p.SendRow(ctx, "stars", 6)
package samp
