package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide writes step-by-step instructions for obtaining a bearer token
func ShowTokenGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "X API BEARER TOKEN")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "likesync reads liked posts through the X API v2 and needs a bearer")
	fmt.Fprintln(w, "token with access to the liked_tweets and users endpoints.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 1: Open https://developer.x.com and sign in")
	fmt.Fprintln(w, "STEP 2: Create a project and an app under the developer portal")
	fmt.Fprintln(w, "STEP 3: Open the app's 'Keys and tokens' tab")
	fmt.Fprintln(w, "STEP 4: Generate the Bearer Token and copy it")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "TIPS:")
	fmt.Fprintln(w, "   • The token is shown once; regenerate it if lost")
	fmt.Fprintf(w, "   • %s overrides any stored token\n", TokenEnvVar)
	fmt.Fprintln(w, "   • A rejected token stops likesync immediately")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token grants API access under your developer account. Do not share it.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
}

// ShowQuickTokenGuide writes a condensed reminder
func ShowQuickTokenGuide(w io.Writer) {
	fmt.Fprintln(w, "Bearer token: developer.x.com → Projects & Apps → Keys and tokens → Bearer Token")
	fmt.Fprintln(w, "Type 'help' for detailed instructions")
}
