package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"aksara/internal/client"
	"aksara/internal/models"
	"aksara/internal/ui/authstate"
	"aksara/internal/ui/chat"
	"aksara/internal/ui/forms"
	"aksara/internal/ui/sidebar"
)

const helpText = `Commands:
  /login               sign in
  /register            create an account
  /logout              sign out
  /history [query]     list conversations, optionally filtered
  /open N              open conversation N from the last list
  /new                 start a new conversation
  /delete N            delete conversation N
  /profile             show and edit your profile
  /password            change your password
  /admin               user management (admins only)
  /toggle N            activate or deactivate user N
  /role N              switch user N between ADMIN and USER
  /rmuser N            delete user N
  /quit                exit
Anything else is sent to the assistant.`

func (a *app) run(ctx context.Context) {
	fmt.Println(a.title("Aksara AI"))
	if a.dummy {
		fmt.Println(a.faint("dummy mode: responses are simulated (admin/admin123, user/user123, demo/demo123)"))
	}
	fmt.Println(a.faint("Type /help for commands."))

	a.chat.OnChange(func(snap chat.Snapshot) {
		if snap.Typing {
			fmt.Println(a.faint("Aksara is typing..."))
		}
	})
	a.enter(ctx, a.route)

	for {
		if ctx.Err() != nil {
			return
		}
		line, ok := a.prompt(a.promptLabel())
		if !ok {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			a.send(ctx, line)
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/quit", "/exit":
			return
		case "/help":
			fmt.Println(helpText)
		case "/login":
			a.login(ctx)
		case "/register":
			a.register(ctx)
		case "/logout":
			a.logout(ctx)
		case "/history":
			a.showHistory(ctx, arg, true)
		case "/search":
			a.showHistory(ctx, arg, false)
		case "/open":
			a.open(ctx, arg)
		case "/new":
			a.chat.NewChat()
			a.history.Select("")
			a.printMessages()
		case "/delete":
			a.deleteConversation(ctx, arg)
		case "/profile":
			a.editProfile(ctx)
		case "/password":
			a.changePassword(ctx)
		case "/admin":
			a.enter(ctx, authstate.RouteAdmin)
		case "/toggle", "/role", "/rmuser":
			a.adminAction(ctx, cmd, arg)
		default:
			fmt.Println(a.warning("unknown command, type /help"))
		}
	}
}

func (a *app) promptLabel() string {
	if user := a.auth.User(); user != nil {
		return a.you(user.Username + "> ")
	}
	return a.you("> ")
}

func (a *app) prompt(label string) (string, bool) {
	fmt.Print(label)
	if !a.in.Scan() {
		return "", false
	}
	return a.in.Text(), true
}

// enter switches to route, falling back to the home route when the guard denies it.
func (a *app) enter(ctx context.Context, route string) {
	var required models.Role
	switch route {
	case authstate.RouteLogin, authstate.RouteRegister:
		a.route = route
		fmt.Println(a.faint("Please /login or /register."))
		return
	case authstate.RouteAdmin:
		required = models.RoleAdmin
	}
	if err := a.auth.Guard(required); err != nil {
		if errors.Is(err, authstate.ErrForbidden) {
			fmt.Println(a.warning("admin access required"))
		}
		home := a.auth.HomeRoute()
		if home == route {
			return
		}
		a.enter(ctx, home)
		return
	}
	a.route = route
	switch route {
	case authstate.RouteAdmin:
		a.showAdmin(ctx)
	default:
		a.showHistory(ctx, "", true)
		a.printMessages()
	}
}

func (a *app) login(ctx context.Context) {
	username, _ := a.prompt("username: ")
	password, _ := a.prompt("password: ")
	if err := a.auth.Login(ctx, username, password); err != nil {
		a.printErr(err)
		return
	}
	a.afterSignIn(ctx)
}

func (a *app) register(ctx context.Context) {
	var form forms.RegisterForm
	form.DisplayName, _ = a.prompt("full name: ")
	form.Email, _ = a.prompt("email: ")
	form.Username, _ = a.prompt("username: ")
	form.Password, _ = a.prompt("password: ")
	form.ConfirmPassword, _ = a.prompt("confirm password: ")
	if err := a.auth.Register(ctx, form); err != nil {
		a.printErr(err)
		return
	}
	a.afterSignIn(ctx)
}

func (a *app) afterSignIn(ctx context.Context) {
	user := a.auth.User()
	fmt.Printf("Welcome, %s.\n", a.title(user.DisplayName))
	a.chat.NewChat()
	a.enter(ctx, a.auth.HomeRoute())
}

func (a *app) logout(ctx context.Context) {
	a.auth.Logout(ctx)
	a.chat.Clear()
	a.history.Select("")
	fmt.Println("Signed out.")
	a.enter(ctx, authstate.RouteLogin)
}

func (a *app) send(ctx context.Context, text string) {
	if err := a.auth.Guard(""); err != nil {
		a.printErr(err)
		return
	}
	before := a.chat.Snapshot().SelectedID
	if err := a.chat.Send(ctx, text); err != nil {
		a.printErr(err)
		return
	}
	snap := a.chat.Snapshot()
	if n := len(snap.Messages); n > 0 {
		a.printMessage(snap.Messages[n-1])
	}
	if snap.SelectedID != before {
		a.history.Select(snap.SelectedID)
		if err := a.history.Load(ctx); err != nil {
			a.logger.Debug("reload history failed", zap.Error(err))
		}
	}
}

func (a *app) showHistory(ctx context.Context, query string, reload bool) {
	if err := a.auth.Guard(""); err != nil {
		a.printErr(err)
		return
	}
	if reload {
		if err := a.history.Load(ctx); err != nil {
			a.printErr(err)
		}
	}
	a.history.SetQuery(query)
	visible, total := a.history.Counts()
	fmt.Println(a.title("History"), a.faint(fmt.Sprintf("(%d of %d conversations)", visible, total)))
	now := time.Now()
	for i, item := range a.history.Visible() {
		marker := " "
		if item.ConversationID == a.history.Selected() {
			marker = "*"
		}
		fmt.Printf("%s%2d. %s  %s\n", marker, i+1, sidebar.Truncate(item.Title, sidebar.PreviewLength), a.faint(sidebar.FormatTimestamp(item.LastTimestamp, now)))
		if item.LastMessagePreview != "" {
			fmt.Printf("     %s\n", a.faint(sidebar.Truncate(item.LastMessagePreview, sidebar.PreviewLength)))
		}
	}
}

func (a *app) historyItem(arg string) (models.ConversationSummary, bool) {
	n, err := strconv.Atoi(arg)
	visible := a.history.Visible()
	if err != nil || n < 1 || n > len(visible) {
		fmt.Println(a.warning("pick a number from /history"))
		return models.ConversationSummary{}, false
	}
	return visible[n-1], true
}

func (a *app) open(ctx context.Context, arg string) {
	item, ok := a.historyItem(arg)
	if !ok {
		return
	}
	if err := a.chat.Select(ctx, item.ConversationID); err != nil {
		a.printErr(err)
		return
	}
	a.history.Select(item.ConversationID)
	a.printMessages()
}

func (a *app) deleteConversation(ctx context.Context, arg string) {
	item, ok := a.historyItem(arg)
	if !ok {
		return
	}
	if err := a.history.Delete(ctx, item.ConversationID); err != nil {
		a.printErr(err)
		return
	}
	a.chat.Forget(item.ConversationID)
	fmt.Printf("Deleted %q.\n", item.Title)
}

func (a *app) editProfile(ctx context.Context) {
	if err := a.auth.Guard(""); err != nil {
		a.printErr(err)
		return
	}
	user := a.auth.User()
	fmt.Printf("%s\n  username: %s\n  name:     %s\n  email:    %s\n  role:     %s\n  joined:   %s\n",
		a.title("Profile"), user.Username, user.DisplayName, user.Email, user.Role, user.CreatedAt.Format("2 Jan 2006"))
	form := a.profile.Form()
	fmt.Println(a.faint("Press Enter to keep a value."))
	for _, field := range []struct {
		label string
		value *string
	}{
		{"username", &form.Username},
		{"full name", &form.DisplayName},
		{"email", &form.Email},
	} {
		v, _ := a.prompt(fmt.Sprintf("%s [%s]: ", field.label, *field.value))
		if v = strings.TrimSpace(v); v != "" {
			*field.value = v
		}
	}
	if form == a.profile.Form() {
		return
	}
	if _, err := a.profile.SaveProfile(ctx, form); err != nil {
		a.printErr(err)
		return
	}
	fmt.Println("Profile updated.")
}

func (a *app) changePassword(ctx context.Context) {
	var form forms.PasswordForm
	form.OldPassword, _ = a.prompt("current password: ")
	form.NewPassword, _ = a.prompt("new password: ")
	form.ConfirmPassword, _ = a.prompt("confirm new password: ")
	if err := a.profile.ChangePassword(ctx, form); err != nil {
		a.printErr(err)
		return
	}
	fmt.Println("Password changed.")
}

func (a *app) showAdmin(ctx context.Context) {
	if err := a.admin.Load(ctx); err != nil {
		a.printErr(err)
		return
	}
	a.printUsers()
}

func (a *app) printUsers() {
	stats := a.admin.Statistics()
	fmt.Println(a.title("Admin dashboard"))
	fmt.Printf("  users: %d  admins: %d  regular: %d  active: %d\n", stats.TotalUsers, stats.AdminUsers, stats.RegularUsers, stats.ActiveUsers)
	for i, u := range a.admin.Users() {
		status := "active"
		if !u.IsActive {
			status = a.warning("inactive")
		}
		fmt.Printf("%3d. %-16s %-24s %-5s %s\n", i+1, u.Username, u.Email, u.Role, status)
	}
}

func (a *app) adminAction(ctx context.Context, cmd, arg string) {
	if err := a.auth.Guard(models.RoleAdmin); err != nil {
		a.printErr(err)
		return
	}
	users := a.admin.Users()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(users) {
		fmt.Println(a.warning("pick a number from /admin"))
		return
	}
	target := users[n-1]
	switch cmd {
	case "/toggle":
		_, err = a.admin.ToggleActive(ctx, target.ID)
	case "/role":
		_, err = a.admin.PromoteToggle(ctx, target.ID)
	case "/rmuser":
		if answer, _ := a.prompt(fmt.Sprintf("delete %s? [y/N] ", target.Username)); strings.EqualFold(strings.TrimSpace(answer), "y") {
			err = a.admin.Delete(ctx, target.ID)
		}
	}
	if err != nil {
		a.printErr(err)
		return
	}
	a.printUsers()
}

func (a *app) printMessages() {
	for _, m := range a.chat.Snapshot().Messages {
		a.printMessage(m)
	}
}

func (a *app) printMessage(m chat.Message) {
	ts := a.faint(m.Timestamp.Local().Format("15:04"))
	switch {
	case m.IsError:
		fmt.Printf("%s %s %s\n", a.ai("Aksara:"), a.warning(m.Content), ts)
	case m.Sender == chat.SenderAI:
		fmt.Printf("%s %s %s\n", a.ai("Aksara:"), m.Content, ts)
	default:
		fmt.Printf("%s %s %s\n", a.you("You:"), m.Content, ts)
	}
}

func (a *app) printErr(err error) {
	a.logger.Debug("command failed", zap.Error(err))
	var vErr *forms.ValidationError
	var apiErr *client.APIError
	switch {
	case errors.As(err, &vErr):
		for _, f := range vErr.Fields {
			fmt.Println(a.warning("  " + f.Message))
		}
	case errors.Is(err, authstate.ErrNotAuthenticated), errors.Is(err, client.ErrUnauthorized):
		fmt.Println(a.warning("please log in first"))
	case errors.As(err, &apiErr):
		fmt.Println(a.warning(apiErr.Error()))
	default:
		fmt.Println(a.warning(err.Error()))
	}
}
