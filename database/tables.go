package database

var Tabels []interface{} = []interface{}{
	&Credential{},
	&Contact{},
	&Project{},
	&Task{},
	&TaskComment{},
	&Space{},
	&Thread{},
	&Member{},
	&Subscription{},
	&ExternalEvent{},
}
