/**
 * @description
 * Embedded verification page served at GET /verify.
 */
package web

import "embed"

// Assets holds the static files of the verification page.
//
//go:embed index.html app.js style.css
var Assets embed.FS
